package hermes

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	SubjectUploadStored     = "arbiter.upload.stored"
	SubjectUploadRemoved    = "arbiter.upload.removed"
	SubjectCollectionLoaded = "arbiter.collection.loaded"
)

// UploadEvent announces an upload being stored or removed. Origin is the
// instance that handled the request, so it can skip its own removals.
type UploadEvent struct {
	FileID     string    `json:"file_id"`
	Filename   string    `json:"filename,omitempty"`
	SessionIDs []string  `json:"session_ids,omitempty"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

// LoadEvent is emitted after a collection is served.
type LoadEvent struct {
	FileID    string    `json:"file_id,omitempty"` // empty for the default collection
	SessionID string    `json:"session_id,omitempty"`
	Records   int       `json:"records"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseUploadEvent decodes an UploadEvent and checks it names a file.
func ParseUploadEvent(data []byte) (UploadEvent, error) {
	var evt UploadEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return UploadEvent{}, fmt.Errorf("parse upload event: %w", err)
	}
	if evt.FileID == "" {
		return UploadEvent{}, fmt.Errorf("parse upload event: missing file_id")
	}
	return evt, nil
}
