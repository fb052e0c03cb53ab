package events

import (
	"errors"
	"os"
	"path/filepath"

	"tidywatch/fileinfo"
	"tidywatch/logger"
	"tidywatch/rules"
	"tidywatch/store"
)

// Handler drives the metadata store and the rule engine from canonical
// events. It is used from a single consumer goroutine; per-path atomicity
// comes from that sequential processing, not from the handler itself.
type Handler struct {
	store *store.Store
	rules *rules.RuleSet
}

func NewHandler(s *store.Store, set *rules.RuleSet) *Handler {
	return &Handler{store: s, rules: set}
}

func (h *Handler) Handle(event Event) {
	// Records are keyed by absolute path; events must be rekeyed the same
	// way or updates for relatively-addressed paths miss their records.
	event.Path = canonical(event.Path)
	if event.NewPath != "" {
		event.NewPath = canonical(event.NewPath)
	}

	switch event.Action {
	case Created:
		logger.Infof("File created: %s", event.Path)
		h.AddFile(event.Path, false)
	case Removed:
		logger.Infof("File removed: %s", event.Path)
		h.removeFile(event.Path)
	case MetadataChanged:
		logger.Debugf("Metadata modification: %s", event.Path)
		h.metadataChanged(event.Path)
	case ContentChanged:
		logger.Debugf("File content modified: %s", event.Path)
		h.contentChanged(event.Path)
	case Renamed:
		logger.Infof("File moved: %s -> %s", event.Path, event.NewPath)
		h.renamed(event.Path, event.NewPath)
	default:
		logger.Warnf("Dropping event with unknown action for %s", event.Path)
	}
}

// AddFile records path, rescoring it afterwards. With upsert set, an
// already-tracked path has its attributes refreshed instead of failing;
// without it, a duplicate is logged and skipped. A path that no longer
// exists on disk is never added.
func (h *Handler) AddFile(path string, upsert bool) {
	record, err := fileinfo.New(path)
	if err != nil {
		logger.Warnf("Refusing to track %s: %v", path, err)
		return
	}

	err = h.store.Add(record)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate) && upsert:
		h.refresh(record)
	case errors.Is(err, store.ErrDuplicate):
		logger.Warnf("Skipping already tracked file: %s", record.Path)
		return
	default:
		logger.Errorf("Failed to add %s: %v", record.Path, err)
		return
	}

	h.rescore(record.Path)
}

func (h *Handler) refresh(record store.FileRecord) {
	if err := h.store.UpdateSize(record.Path, record.Size); err != nil {
		logger.Errorf("Failed to refresh size of %s: %v", record.Path, err)
	}
	if err := h.store.UpdateSignature(record.Path, record.ContentSignature); err != nil {
		logger.Errorf("Failed to refresh signature of %s: %v", record.Path, err)
	}
	if err := h.store.UpdateLastModified(record.Path, record.LastModified); err != nil {
		logger.Errorf("Failed to refresh timestamp of %s: %v", record.Path, err)
	}
	if err := h.store.UpdateMimeType(record.Path, record.MimeType); err != nil {
		logger.Errorf("Failed to refresh MIME type of %s: %v", record.Path, err)
	}
}

func (h *Handler) removeFile(path string) {
	if _, err := os.Stat(path); err == nil {
		logger.Errorf("Refusing to untrack a file that still exists: %s", path)
		return
	}
	err := h.store.Remove(path)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debugf("Removal of untracked path ignored: %s", path)
		return
	}
	if err != nil {
		logger.Errorf("Failed to remove %s: %v", path, err)
	}
}

func (h *Handler) metadataChanged(path string) {
	info, err := os.Stat(path)
	if err != nil {
		logger.Warnf("Metadata event for unreadable file %s: %v", path, err)
		return
	}
	if err := h.store.UpdateLastModified(path, fileinfo.LastModified(path, info)); err != nil {
		logger.Errorf("Failed to update timestamp of %s: %v", path, err)
		return
	}
	h.rescore(path)
}

func (h *Handler) contentChanged(path string) {
	signature := fileinfo.Signature(path)
	if err := h.store.UpdateSignature(path, signature); err != nil {
		logger.Errorf("Failed to update signature of %s: %v", path, err)
		return
	}
	h.rescore(path)
}

func (h *Handler) renamed(oldPath, newPath string) {
	if err := h.store.UpdatePath(oldPath, newPath); err != nil {
		logger.Errorf("Failed to rename %s to %s: %v", oldPath, newPath, err)
		return
	}
	h.rescore(newPath)
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		logger.Warnf("Could not resolve %s to an absolute path: %v", path, err)
		return path
	}
	return abs
}

func (h *Handler) rescore(path string) {
	if err := h.store.UpdateGrade(path, h.rules); err != nil {
		logger.Errorf("Failed to rescore %s: %v", path, err)
	}
}
