package models

import (
	"encoding/json"
	"time"
)

// JournalEntry is one normalized event mirrored to the event journal.
type JournalEntry struct {
	Channel  string          `json:"channel"`
	Kind     string          `json:"kind"`
	Received time.Time       `json:"received"`
	Payload  json.RawMessage `json:"payload"`
}
