// Package store owns the authoritative set of tracked file records, backed
// by sqlite. Mutations are serialized by an internal mutex; reads are
// snapshot-consistent but not linearizable with in-flight writes.
package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"tidywatch/config"
	"tidywatch/logger"
	"tidywatch/rules"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	mu  sync.Mutex
	cfg config.StoreConfig
	db  *sql.DB
}

// InitDB creates the schema. With DropDBOnStart set, the existing table is
// dropped first; this is destructive and always logged.
func (s *Store) InitDB() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.DropDBOnStart {
		logger.Warnf("drop_db_on_start is set: dropping all tracked records in %s", s.cfg.DBPath)
		if _, err := s.db.Exec(`DROP TABLE IF EXISTS files`); err != nil {
			return storageErr("drop", s.cfg.DBPath, err)
		}
	}

	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	size INTEGER NOT NULL,
	content_signature TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	tidy_score REAL
)`)
	if err != nil {
		return storageErr("init", s.cfg.DBPath, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add inserts a new record. The record starts unscored regardless of the
// TidyScore carried by the argument. Fails with ErrDuplicate if the path is
// already tracked.
func (s *Store) Add(record FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(record.Path)
	if err != nil {
		return storageErr("add", record.Path, err)
	}
	if exists {
		return ErrDuplicate
	}

	_, err = s.db.Exec(`
INSERT INTO files(path, name, size, content_signature, last_modified, mime_type, tidy_score)
VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		record.Path, record.Name, record.Size, record.ContentSignature,
		record.LastModified.Format(timeLayout), record.MimeType)
	if err != nil {
		return storageErr("add", record.Path, err)
	}
	return nil
}

// Remove deletes the record for path. Not idempotent: a second call fails
// with ErrNotFound.
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return storageErr("remove", path, err)
	}
	return requireAffected(result, "remove", path)
}

func (s *Store) UpdateSignature(path, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE files SET content_signature = ? WHERE path = ?`, signature, path)
	if err != nil {
		return storageErr("update_signature", path, err)
	}
	return requireAffected(result, "update_signature", path)
}

func (s *Store) UpdateLastModified(path string, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE files SET last_modified = ? WHERE path = ?`,
		timestamp.Format(timeLayout), path)
	if err != nil {
		return storageErr("update_last_modified", path, err)
	}
	return requireAffected(result, "update_last_modified", path)
}

// UpdatePath rekeys a record from oldPath to newPath, refreshing the stored
// name. Fails with ErrNotFound if oldPath is absent and ErrDuplicate if
// newPath is already tracked.
func (s *Store) UpdatePath(oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(newPath)
	if err != nil {
		return storageErr("update_path", newPath, err)
	}
	if exists {
		return ErrDuplicate
	}

	result, err := s.db.Exec(`UPDATE files SET path = ?, name = ? WHERE path = ?`,
		newPath, filepath.Base(newPath), oldPath)
	if err != nil {
		return storageErr("update_path", oldPath, err)
	}
	return requireAffected(result, "update_path", oldPath)
}

// UpdateMimeType refreshes the stored MIME type for path.
func (s *Store) UpdateMimeType(path, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE files SET mime_type = ? WHERE path = ?`, mimeType, path)
	if err != nil {
		return storageErr("update_mime_type", path, err)
	}
	return requireAffected(result, "update_mime_type", path)
}

// UpdateSize refreshes the stored byte length for path.
func (s *Store) UpdateSize(path string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE files SET size = ? WHERE path = ?`, size, path)
	if err != nil {
		return storageErr("update_size", path, err)
	}
	return requireAffected(result, "update_size", path)
}

func (s *Store) SetScore(path string, score rules.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setScore(path, score)
}

// Get returns the record for path or ErrNotFound.
func (s *Store) Get(path string) (FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(path)
}

// ListAll returns a snapshot of every tracked record in no particular
// order. Ordering is a query-time concern of the API layer.
func (s *Store) ListAll() ([]FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
SELECT path, name, size, content_signature, last_modified, mime_type, tidy_score
FROM files`)
	if err != nil {
		return nil, storageErr("list", "", err)
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("list", "", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "", err)
	}
	return records, nil
}

// UpdateGrade re-evaluates path against the rule set and writes the score
// back, all under one critical section so concurrent mutation of the same
// record cannot interleave with the read-evaluate-write cycle.
func (s *Store) UpdateGrade(path string, set *rules.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.get(path)
	if err != nil {
		return err
	}
	score := rules.Evaluate(rules.FileAttrs{
		Path:     record.Path,
		Name:     record.Name,
		Size:     record.Size,
		ModTime:  record.LastModified,
		MimeType: record.MimeType,
	}, set)
	return s.setScore(path, score)
}

func (s *Store) exists(path string) (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM files WHERE path = ?`, path).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) get(path string) (FileRecord, error) {
	row := s.db.QueryRow(`
SELECT path, name, size, content_signature, last_modified, mime_type, tidy_score
FROM files WHERE path = ?`, path)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, storageErr("get", path, err)
	}
	return record, nil
}

func (s *Store) setScore(path string, score rules.Score) error {
	result, err := s.db.Exec(`UPDATE files SET tidy_score = ? WHERE path = ?`, float64(score), path)
	if err != nil {
		return storageErr("set_score", path, err)
	}
	return requireAffected(result, "set_score", path)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (FileRecord, error) {
	var record FileRecord
	var lastModified string
	var score sql.NullFloat64
	err := row.Scan(&record.Path, &record.Name, &record.Size,
		&record.ContentSignature, &lastModified, &record.MimeType, &score)
	if err != nil {
		return FileRecord{}, err
	}
	if parsed, perr := time.Parse(timeLayout, lastModified); perr == nil {
		record.LastModified = parsed
	} else {
		logger.Errorf("Corrupt last_modified for %s, falling back to zero time: %v", record.Path, perr)
	}
	if score.Valid {
		value := score.Float64
		record.TidyScore = &value
	}
	return record, nil
}

func requireAffected(result sql.Result, op, path string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr(op, path, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
