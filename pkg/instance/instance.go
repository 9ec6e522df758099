package instance

import (
	"os"
	"strings"
)

// GetID returns the process instance identifier. Platform dyno names win over
// an explicit WORKER_ID, then the hostname; fallback is used when none is set.
func GetID(fallback string) string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}
