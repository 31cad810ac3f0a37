package archive

import (
	"encoding/json"
	"time"
)

// RawEvent is an inbound channel payload exactly as it was received.
type RawEvent struct {
	Version    string          `json:"version"`
	ID         string          `json:"id"`
	OrgID      string          `json:"org_id"`
	Channel    string          `json:"channel"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}
