package store

import "time"

// FileRecord is one tracked filesystem path. Path is the unique key; a nil
// TidyScore means the rule engine has not evaluated the file yet.
type FileRecord struct {
	Path             string     `json:"path"`
	Name             string     `json:"name"`
	Size             int64      `json:"size"`
	ContentSignature string     `json:"content_signature,omitempty"`
	LastModified     time.Time  `json:"last_modified"`
	MimeType         string     `json:"mime_type,omitempty"`
	TidyScore        *float64   `json:"tidy_score"`
}

// Scored reports whether the record has been evaluated at least once.
func (r *FileRecord) Scored() bool {
	return r.TidyScore != nil
}
