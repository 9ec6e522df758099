package outbox

import (
	"encoding/json"
	"time"
)

// Actor identifies the buyer or system process that produced the event.
type Actor struct {
	UID  string `json:"uid"`
	Role string `json:"role,omitempty"`
}

// SystemActor marks events raised by gateway callbacks or scheduled jobs.
var SystemActor = &Actor{UID: "system", Role: "system"}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
