package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/agromarket-backend/api/responses"
	"github.com/angelmondragon/agromarket-backend/pkg/config"
	"github.com/angelmondragon/agromarket-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/redis"
)

const (
	envHeader        = "X-Agromarket-Env"
	readinessTimeout = 2 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "status": "live"})
	}
}

// HealthReady pings Postgres and Redis. Either failing reports 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		var failed error
		if err := ping(ctx, dbP); err != nil {
			checks["database"] = "unavailable"
			failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable")
		}
		if err := ping(ctx, redisP); err != nil {
			checks["redis"] = "unavailable"
			if failed == nil {
				failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable")
			}
		}
		if failed != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.As(failed).WithDetails(checks))
			return
		}
		responses.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ready", "checks": checks})
	}
}

func ping(ctx context.Context, p interface{ Ping(context.Context) error }) error {
	if p == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "not configured")
	}
	return p.Ping(ctx)
}
