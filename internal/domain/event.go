package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Lifecycle event types.
const (
	EventBenchmarkDownloaded = "benchmark_downloaded"
	EventArtifactCopied      = "artifact_copied"
	EventArtifactGenerated   = "artifact_generated"
	EventArtifactMissing     = "artifact_missing"
)

// Event records one side effect of processing a HUC.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	HUC        string    `json:"huc"`
	Date       string    `json:"date,omitempty"`
	Path       string    `json:"path,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent builds an event whose ID is derived from its type, HUC, date and
// path, so replays of the same side effect share an ID.
func NewEvent(typ, huc, date, path string, at time.Time) Event {
	return Event{
		ID:         eventID(typ, huc, date, path),
		Type:       typ,
		HUC:        huc,
		Date:       date,
		Path:       path,
		OccurredAt: at.UTC(),
	}
}

func eventID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%s|", p)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
