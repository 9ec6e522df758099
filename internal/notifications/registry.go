package notifications

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/agromarket-backend/pkg/logger"
)

const defaultBuffer = 16

// Connection is one live subscriber, typically an SSE stream.
type Connection struct {
	ID          string
	RecipientID string
	events      chan Event
}

// Events is the channel the connection reads from. It is closed on Deregister.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Registry tracks live connections per recipient and implements Port.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[string]*Connection
	buffer int
	logg   *logger.Logger
}

func NewRegistry(logg *logger.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]map[string]*Connection),
		buffer: defaultBuffer,
		logg:   logg,
	}
}

var _ Port = (*Registry)(nil)

// Register opens a connection for recipientID.
func (r *Registry) Register(recipientID string) *Connection {
	conn := &Connection{
		ID:          uuid.NewString(),
		RecipientID: strings.TrimSpace(recipientID),
		events:      make(chan Event, r.buffer),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.conns[conn.RecipientID]
	if !ok {
		byID = make(map[string]*Connection)
		r.conns[conn.RecipientID] = byID
	}
	byID[conn.ID] = conn
	return conn
}

// Deregister removes conn and closes its channel. Calling it twice is safe.
func (r *Registry) Deregister(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.conns[conn.RecipientID]
	if !ok {
		return
	}
	if _, ok := byID[conn.ID]; !ok {
		return
	}
	delete(byID, conn.ID)
	close(conn.events)
	if len(byID) == 0 {
		delete(r.conns, conn.RecipientID)
	}
}

// Connected returns the number of live connections for recipientID.
func (r *Registry) Connected(recipientID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[recipientID])
}

// Send fans event out to every connection of recipientID. A connection whose
// buffer is full drops the event rather than blocking the caller.
func (r *Registry) Send(ctx context.Context, recipientID string, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.conns[strings.TrimSpace(recipientID)] {
		select {
		case conn.events <- event:
		default:
			if r.logg != nil {
				fields := map[string]any{"recipient_id": recipientID, "connection_id": conn.ID, "event_type": event.Type}
				r.logg.Warn(r.logg.WithFields(ctx, fields), "notification dropped, subscriber too slow")
			}
		}
	}
	return nil
}
