// Package server exposes the read-only query API over the metadata store.
// Sorting and truncation happen here; the store itself guarantees no
// ordering.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"tidywatch/agentdata"
	"tidywatch/logger"
	"tidywatch/store"
)

type Server struct {
	address    string
	logQueries bool
	store      *store.Store
	agentData  *agentdata.AgentData
}

func New(address, logLevel string, s *store.Store, data *agentdata.AgentData) *Server {
	return &Server{
		address:    address,
		logQueries: logLevel == "debug" || logLevel == "trace",
		store:      s,
		agentData:  data,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHello)
	mux.HandleFunc("GET /get_files/{count}/sorted_by/{sort}", s.handleGetFiles)
	mux.HandleFunc("GET /get_status", s.handleGetStatus)

	if !s.logQueries {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Query API request: %s %s", r.Method, r.URL.Path)
		mux.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.address, Handler: s.routes()}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Query API listening on %s", s.address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "hello world"})
}

func (s *Server) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.PathValue("count"))
	if err != nil || count < 0 {
		http.Error(w, "count must be a non-negative integer", http.StatusBadRequest)
		return
	}

	records, err := s.store.ListAll()
	if err != nil {
		logger.Errorf("Failed to list files: %v", err)
		http.Error(w, "failed to list files", http.StatusInternalServerError)
		return
	}

	sortBy := r.PathValue("sort")
	switch sortBy {
	case "size":
		sort.Slice(records, func(i, j int) bool { return records[i].Size > records[j].Size })
	case "last_update":
		sort.Slice(records, func(i, j int) bool {
			return records[i].LastModified.After(records[j].LastModified)
		})
	default:
		logger.Errorf("Invalid sort parameter %q in get_files route, defaulting to size", sortBy)
		sort.Slice(records, func(i, j int) bool { return records[i].Size > records[j].Size })
	}

	if count < len(records) {
		records = records[:count]
	}
	if records == nil {
		records = []store.FileRecord{}
	}
	writeJSON(w, records)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.agentData.Snapshot())
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}
