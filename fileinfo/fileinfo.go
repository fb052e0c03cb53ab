// Package fileinfo builds store records from on-disk file attributes.
package fileinfo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/djherbis/times"
	"github.com/h2non/filetype"

	"tidywatch/logger"
	"tidywatch/store"
)

const mimeSniffBytes = 261

// New stats path and assembles a FileRecord with its current attributes.
// The record starts unscored.
func New(path string) (store.FileRecord, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return store.FileRecord{}, fmt.Errorf("resolving %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return store.FileRecord{}, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return store.FileRecord{}, fmt.Errorf("%s is a directory", abs)
	}

	record := store.FileRecord{
		Path:             abs,
		Name:             filepath.Base(abs),
		Size:             info.Size(),
		LastModified:     LastModified(abs, info),
		ContentSignature: Signature(abs),
		MimeType:         DetectMimeType(abs),
	}
	return record, nil
}

// LastModified prefers the change time reported by the platform and falls
// back to the plain mod time.
func LastModified(path string, info os.FileInfo) time.Time {
	if ts, err := times.Stat(path); err == nil {
		if ts.HasChangeTime() {
			return ts.ChangeTime()
		}
		return ts.ModTime()
	}
	if info != nil {
		return info.ModTime()
	}
	return time.Time{}
}

// Signature computes the xxhash digest of the file contents. An unreadable
// file yields an empty signature; the caller records the file anyway.
func Signature(path string) string {
	file, err := os.Open(path)
	if err != nil {
		logger.Warnf("Failed to open file for signature %s: %v", path, err)
		return ""
	}
	defer file.Close()

	digest := xxhash.New()
	if _, err := io.Copy(digest, file); err != nil {
		logger.Warnf("Failed to compute signature for %s: %v", path, err)
		return ""
	}
	return fmt.Sprintf("%016x", digest.Sum64())
}

// DetectMimeType sniffs the MIME type from the file's leading bytes.
// Unknown or unreadable files yield an empty string.
func DetectMimeType(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	buf := make([]byte, mimeSniffBytes)
	n, err := file.Read(buf)
	if n == 0 && err != nil {
		return ""
	}
	kind, err := filetype.Match(buf[:n])
	if err != nil || kind == filetype.Unknown || kind.MIME.Value == "" {
		return ""
	}
	return kind.MIME.Value
}
