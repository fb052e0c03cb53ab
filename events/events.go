// Package events turns canonical file events into store mutations plus
// rescoring. One bad event never stops the stream: every store failure is
// logged and the handler moves on.
package events

// Action is the canonical form of a raw filesystem notification.
type Action int

const (
	Created Action = iota
	Removed
	MetadataChanged
	ContentChanged
	Renamed
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created"
	case Removed:
		return "removed"
	case MetadataChanged:
		return "metadata_changed"
	case ContentChanged:
		return "content_changed"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is one normalized file event. NewPath is set only for Renamed.
type Event struct {
	Action  Action
	Path    string
	NewPath string
}
