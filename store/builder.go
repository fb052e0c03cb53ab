package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"tidywatch/config"
)

// The store is built through a staged builder: configuration first, then a
// live database handle, then Build. Each stage returns a distinct type, so
// a Build call without both inputs does not compile.

type Builder struct{}

type ConfiguredBuilder struct {
	cfg config.StoreConfig
}

type SealedBuilder struct {
	cfg config.StoreConfig
	db  *sql.DB
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) WithConfig(cfg config.StoreConfig) *ConfiguredBuilder {
	return &ConfiguredBuilder{cfg: cfg}
}

func (b *ConfiguredBuilder) WithConnection(db *sql.DB) *SealedBuilder {
	return &SealedBuilder{cfg: b.cfg, db: db}
}

// Build verifies the handle and returns a usable store. Failure here is the
// one unrecoverable startup condition the agent has.
func (b *SealedBuilder) Build() (*Store, error) {
	if b.db == nil {
		return nil, fmt.Errorf("store build: nil database handle")
	}
	if err := b.db.Ping(); err != nil {
		return nil, fmt.Errorf("store build: ping: %w", err)
	}
	return &Store{cfg: b.cfg, db: b.db}, nil
}

// Open opens the sqlite handle for the configured database path. The handle
// is what WithConnection expects.
func Open(cfg config.StoreConfig) (*sql.DB, error) {
	dir := filepath.Dir(cfg.DBPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
