// Package sse streams dataset change notifications to clients as
// Server-Sent Events.
package sse

import (
	"time"

	"github.com/siftrapp/siftr-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventDatasetCreated is sent after a dataset is imported for the first time.
	EventDatasetCreated EventType = "dataset.created"
	// EventDatasetReplaced is sent after a re-import swapped a dataset's species.
	EventDatasetReplaced EventType = "dataset.replaced"
	// EventDatasetDeleted is sent after a dataset is removed.
	EventDatasetDeleted EventType = "dataset.deleted"
	// EventDatasetReloadFailed is sent when a watched sheet changed but could
	// not be loaded. The previous version stays active.
	EventDatasetReloadFailed EventType = "dataset.reload_failed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Clients subscribed to one dataset only receive events whose dataset
	// matches by ID or slug. Empty means the event goes to everyone.
	DatasetID   string `json:"-"`
	DatasetSlug string `json:"-"`
}

// DatasetEventData is the payload for dataset created and replaced events.
// Clients holding an attribute universe for the dataset should refetch it.
type DatasetEventData struct {
	UpdatedAt    time.Time `json:"updated_at"`
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	SpeciesCount int       `json:"species_count"`
	DroppedRows  int       `json:"dropped_rows"`
}

// DatasetDeletedEventData is the payload for dataset delete events.
type DatasetDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
}

// ReloadFailedEventData is the payload for failed sheet reloads.
type ReloadFailedEventData struct {
	Slug  string `json:"slug,omitempty"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewDatasetImportedEvent creates a dataset.created or dataset.replaced event.
func NewDatasetImportedEvent(ds *domain.Dataset, created bool) Event {
	typ := EventDatasetReplaced
	if created {
		typ = EventDatasetCreated
	}
	return Event{
		Type: typ,
		Data: DatasetEventData{
			ID:           ds.ID,
			Slug:         ds.Slug,
			Name:         ds.Name,
			SpeciesCount: ds.SpeciesCount,
			DroppedRows:  ds.DroppedRows,
			UpdatedAt:    ds.UpdatedAt,
		},
		Timestamp:   time.Now(),
		DatasetID:   ds.ID,
		DatasetSlug: ds.Slug,
	}
}

// NewDatasetDeletedEvent creates a dataset.deleted event.
func NewDatasetDeletedEvent(ds *domain.Dataset) Event {
	now := time.Now()
	return Event{
		Type: EventDatasetDeleted,
		Data: DatasetDeletedEventData{
			ID:        ds.ID,
			Slug:      ds.Slug,
			DeletedAt: now,
		},
		Timestamp:   now,
		DatasetID:   ds.ID,
		DatasetSlug: ds.Slug,
	}
}

// NewReloadFailedEvent creates a dataset.reload_failed event. slug may be
// empty when the file is not mapped to a dataset.
func NewReloadFailedEvent(slug, path string, err error) Event {
	return Event{
		Type: EventDatasetReloadFailed,
		Data: ReloadFailedEventData{
			Slug:  slug,
			Path:  path,
			Error: err.Error(),
		},
		Timestamp:   time.Now(),
		DatasetSlug: slug,
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}

// matches reports whether a client subscribed to filter should see e.
func (e Event) matches(filter string) bool {
	if filter == "" || (e.DatasetID == "" && e.DatasetSlug == "") {
		return true
	}
	return filter == e.DatasetID || filter == e.DatasetSlug
}
