package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the uploads stream
const (
	EventUploadStored  = "upload_stored"
	EventUploadDeleted = "upload_deleted"
)

// Stream names
const (
	StreamUploads = "stream:uploads"
)

// Consumer group name for retention workers
const (
	ConsumerGroupUploads = "upload_workers"
)

// UploadEvent is published whenever the storage layer gains or loses an object.
type UploadEvent struct {
	Type      string `json:"type"`      // EventUploadStored, EventUploadDeleted
	Timestamp int64  `json:"timestamp"` // Unix milliseconds when the event occurred

	Filename  string `json:"filename,omitempty"`
	LocalPath string `json:"local_path,omitempty"` // /uploads/<name> ref, empty when no local copy is kept
	RemoteRef string `json:"remote_ref,omitempty"` // gs:// or r2:// ref
}

// NewUploadStoredEvent creates an event for a freshly stored upload.
// The worker indexes every ref so the sweeper can expire it later.
func NewUploadStoredEvent(filename, localPath, remoteRef string) UploadEvent {
	return UploadEvent{
		Type:      EventUploadStored,
		Timestamp: time.Now().UnixMilli(),
		Filename:  filename,
		LocalPath: localPath,
		RemoteRef: remoteRef,
	}
}

// NewUploadDeletedEvent creates an event for an object removed outside the sweeper.
func NewUploadDeletedEvent(ref string) UploadEvent {
	return UploadEvent{
		Type:      EventUploadDeleted,
		Timestamp: time.Now().UnixMilli(),
		RemoteRef: ref,
	}
}

// Refs returns every non-empty ref carried by the event.
func (e UploadEvent) Refs() []string {
	refs := make([]string, 0, 2)
	if e.LocalPath != "" {
		refs = append(refs, e.LocalPath)
	}
	if e.RemoteRef != "" {
		refs = append(refs, e.RemoteRef)
	}
	return refs
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e UploadEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseUploadEvent parses an UploadEvent from Redis stream message values.
func ParseUploadEvent(values map[string]interface{}) (UploadEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return UploadEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event UploadEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return UploadEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
