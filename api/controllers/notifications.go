package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/agromarket-backend/api/middleware"
	"github.com/angelmondragon/agromarket-backend/api/responses"
	"github.com/angelmondragon/agromarket-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
)

const streamHeartbeat = 25 * time.Second

// NotificationRegistry tracks live stream connections.
type NotificationRegistry interface {
	Register(recipientID string) *notifications.Connection
	Deregister(conn *notifications.Connection)
}

// NotificationStream holds a server-sent events stream open for the caller
// and forwards every event sent to their uid.
func NotificationStream(registry NotificationRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if registry == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification registry unavailable"))
			return
		}
		uid := middleware.BuyerUIDFromContext(ctx)
		if uid == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer context missing"))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		conn := registry.Register(uid)
		defer registry.Deregister(conn)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "event: ready\ndata: {\"connectionId\":%q}\n\n", conn.ID)
		flusher.Flush()

		if logg != nil {
			logg.Info(logg.WithField(ctx, "connection_id", conn.ID), "notifications.stream_open")
		}

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case event, open := <-conn.Events():
				if !open {
					return
				}
				payload, err := json.Marshal(event)
				if err != nil {
					if logg != nil {
						logg.Error(ctx, "notifications.encode_failed", err)
					}
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
				flusher.Flush()
			}
		}
	}
}
