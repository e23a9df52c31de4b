package watcher

import "time"

// EventType represents the type of file system event.
type EventType int

const (
	// EventChanged is emitted when a tracked file was written or replaced
	// and has since settled.
	EventChanged EventType = iota
	// EventRemoved is emitted when a tracked file is deleted or renamed away.
	EventRemoved
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "changed"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event describes a change to a tracked file.
type Event struct {
	Type    EventType
	Path    string
	Size    int64     // Zero for removals
	ModTime time.Time // Zero for removals
}
