package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tidywatch/version"
)

type AgentVersion struct {
	Latest  string `json:"latest_version"`
	Minimal string `json:"minimal_version"`
}

type ListerConfig struct {
	Dirs           []string `json:"dirs"`
	MaxIOPerSecond int      `json:"max_io_per_second"`
	Progress       bool     `json:"progress"`
}

type WatcherConfig struct {
	Dirs []string `json:"dirs"`
}

type ServerConfig struct {
	Address  string `json:"address"`
	LogLevel string `json:"log_level"`
}

type StoreConfig struct {
	DBPath        string `json:"db_path"`
	DropDBOnStart bool   `json:"drop_db_on_start"`
}

type HubConfig struct {
	Host                   string `json:"host"`
	Port                   string `json:"port"`
	Protocol               string `json:"protocol"`
	AuthPath               string `json:"auth_path"`
	DisconnectPath         string `json:"disconnect_path"`
	ConnectionAttemptLimit int    `json:"connection_attempt_limit"`
	RetryInitialSeconds    int    `json:"retry_initial_seconds"`
}

type Config struct {
	AgentVersion AgentVersion  `json:"agent_version"`
	Lister       ListerConfig  `json:"lister"`
	Watcher      WatcherConfig `json:"watcher"`
	Server       ServerConfig  `json:"server"`
	Store        StoreConfig   `json:"store"`
	Hub          HubConfig     `json:"hub"`
	RulesFile    string        `json:"rules_file"`
	LogLevel     string        `json:"log_level"`
}

func defaults() *Config {
	return &Config{
		AgentVersion: AgentVersion{
			Latest:  version.Version,
			Minimal: version.MinimalVersion,
		},
		Lister: ListerConfig{
			Dirs:           []string{},
			MaxIOPerSecond: 0,
			Progress:       false,
		},
		Watcher: WatcherConfig{
			Dirs: []string{},
		},
		Server: ServerConfig{
			Address:  "0.0.0.0:8111",
			LogLevel: "info",
		},
		Store: StoreConfig{
			DBPath:        "tidywatch.db",
			DropDBOnStart: false,
		},
		Hub: HubConfig{
			Host:                   "localhost",
			Port:                   "7001",
			Protocol:               "http",
			AuthPath:               "/gateway/auth/agent",
			DisconnectPath:         "/gateway/auth/agent/{agent_id}/disconnect",
			ConnectionAttemptLimit: 30,
			RetryInitialSeconds:    5,
		},
		RulesFile: "config/rules/basic.yml",
		LogLevel:  "info",
	}
}

func LoadConfig() (*Config, error) {
	cfg := defaults()

	configFile := flag.String("config", "", "Path to JSON configuration file (default: none).")
	dirs := flag.String("dirs", "", "Comma-separated list of directories to track (overrides lister and watcher dirs).")
	dbPath := flag.String("db-path", "", "Path to the metadata database file.")
	dropDB := flag.Bool("drop-db-on-start", false, "Drop and recreate the metadata database on start.")
	rulesFile := flag.String("rules", "", "Path to the YAML rule-set file.")
	address := flag.String("address", "", "Query API listen address (host:port).")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error, fatal, or panic.")
	flag.Parse()

	if *configFile != "" {
		if err := cfg.loadFromFile(*configFile); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", *configFile, err)
		}
	}

	if *dirs != "" {
		parsed := parseCommaSeparated(*dirs)
		cfg.Lister.Dirs = parsed
		cfg.Watcher.Dirs = parsed
	}
	if *dbPath != "" {
		cfg.Store.DBPath = *dbPath
	}
	if *dropDB {
		cfg.Store.DropDBOnStart = true
	}
	if *rulesFile != "" {
		cfg.RulesFile = *rulesFile
	}
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) validate() error {
	if len(c.Lister.Dirs) == 0 && len(c.Watcher.Dirs) == 0 {
		return fmt.Errorf("no directories configured: set lister.dirs, watcher.dirs, or -dirs")
	}
	// Watched directories become absolute here so every downstream path,
	// lister output and watcher events alike, keys the store consistently.
	for _, dirs := range [][]string{c.Lister.Dirs, c.Watcher.Dirs} {
		for i, dir := range dirs {
			if dir == "" {
				return fmt.Errorf("empty directory entry in configuration")
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving directory %s: %w", dir, err)
			}
			dirs[i] = abs
		}
	}
	if c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path must not be empty")
	}
	if c.Hub.Protocol != "http" && c.Hub.Protocol != "https" {
		return fmt.Errorf("hub.protocol must be http or https, got %q", c.Hub.Protocol)
	}
	if c.Hub.ConnectionAttemptLimit < 0 {
		return fmt.Errorf("hub.connection_attempt_limit must not be negative")
	}
	if c.Hub.RetryInitialSeconds <= 0 {
		c.Hub.RetryInitialSeconds = 5
	}
	if c.Lister.MaxIOPerSecond < 0 {
		return fmt.Errorf("lister.max_io_per_second must not be negative")
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
