package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Fields is a flat string map persisted as JSONB, used for raw gateway payloads.
type Fields map[string]string

// Value marshals the map into JSON.
func (f Fields) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(map[string]string(f))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSON into the map.
func (f *Fields) Scan(value any) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	if raw == nil {
		*f = nil
		return nil
	}
	result := make(Fields)
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*f = result
	return nil
}

// Get returns the value for key or "" when absent.
func (f Fields) Get(key string) string {
	if f == nil {
		return ""
	}
	return f[key]
}
