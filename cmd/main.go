package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tidywatch/agentdata"
	"tidywatch/config"
	"tidywatch/events"
	"tidywatch/hub"
	"tidywatch/lister"
	"tidywatch/logger"
	"tidywatch/rules"
	"tidywatch/server"
	"tidywatch/store"
	"tidywatch/watcher"
)

const eventQueueSize = 1024

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)

	// Inability to construct the store is the one unrecoverable startup
	// failure.
	db, err := store.Open(cfg.Store)
	if err != nil {
		logger.Fatalf("Failed to open metadata database: %v", err)
	}
	metaStore, err := store.NewBuilder().
		WithConfig(cfg.Store).
		WithConnection(db).
		Build()
	if err != nil {
		logger.Fatalf("Failed to build metadata store: %v", err)
	}
	defer metaStore.Close()
	if err := metaStore.InitDB(); err != nil {
		logger.Fatalf("Failed to initialize metadata store: %v", err)
	}
	logger.Info("Metadata store initialized")

	ruleSet := loadRules(cfg.RulesFile)
	handler := events.NewHandler(metaStore, ruleSet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := lister.Run(ctx, cfg.Lister, handler); err != nil {
		logger.Errorf("Directory listing interrupted: %v", err)
	}
	updateAllGrades(metaStore, ruleSet)
	logger.Info("Initial listing and grading complete")

	agentData := agentdata.New(cfg.AgentVersion, cfg.Watcher.Dirs)
	srv := server.New(cfg.Server.Address, cfg.Server.LogLevel, metaStore, agentData)
	go func() {
		if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Query API stopped: %v", err)
		}
	}()

	hubClient := hub.NewClient(cfg.Hub)
	go hubClient.Run(ctx)

	eventCh := make(chan events.Event, eventQueueSize)
	fsWatcher, err := watcher.New(cfg.Watcher.Dirs, eventCh)
	if err != nil {
		logger.Errorf("File watcher unavailable, live updates disabled: %v", err)
	} else {
		go fsWatcher.Run(ctx)
		logger.Info("File events watcher started")
	}

	consumeEvents(ctx, eventCh, handler)

	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer disconnectCancel()
	hubClient.Disconnect(disconnectCtx)
	logger.Info("Shutdown complete")
}

// consumeEvents is the single consumer of the event queue. Events are
// processed strictly sequentially, which is what makes per-path store
// mutation atomic within the pipeline.
func consumeEvents(ctx context.Context, eventCh <-chan events.Event, handler *events.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			handler.Handle(event)
		}
	}
}

func loadRules(path string) *rules.RuleSet {
	ruleSet, count, errs := rules.Load(path)
	for _, err := range errs {
		logger.Errorf("Rule load: %v", err)
	}
	if ruleSet == nil {
		logger.Errorf("No usable rule set at %s, files will stay unscored", path)
		return &rules.RuleSet{LoadedAt: time.Now()}
	}
	logger.Infof("Loaded %d rules from %s", count, path)
	return ruleSet
}

func updateAllGrades(metaStore *store.Store, ruleSet *rules.RuleSet) {
	records, err := metaStore.ListAll()
	if err != nil {
		logger.Errorf("Failed to list files for initial grading: %v", err)
		return
	}
	for _, record := range records {
		if err := metaStore.UpdateGrade(record.Path, ruleSet); err != nil {
			logger.Errorf("Failed to grade %s: %v", record.Path, err)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Interrupt signal received. Shutting down...")
	cancel()
}
