package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StatusChange records one order status transition.
type StatusChange struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changedAt"`
	Note      string    `json:"note,omitempty"`
}

// StatusHistory is the append-only transition log stored with an order.
type StatusHistory []StatusChange

// Append returns a copy of the history with a new entry at the end.
func (h StatusHistory) Append(status, note string, at time.Time) StatusHistory {
	out := make(StatusHistory, len(h), len(h)+1)
	copy(out, h)
	return append(out, StatusChange{Status: status, ChangedAt: at.UTC(), Note: note})
}

// Value marshals the history into JSON.
func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]StatusChange(h))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSON into the history.
func (h *StatusHistory) Scan(value any) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("status history: %w", err)
	}
	if raw == nil {
		*h = nil
		return nil
	}
	var out StatusHistory
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*h = out
	return nil
}

func jsonBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
