package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/agromarket-backend/api/responses"
	pkgAuth "github.com/angelmondragon/agromarket-backend/pkg/auth"
	"github.com/angelmondragon/agromarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the buyer.
// EventSource clients cannot set headers, so an access_token query parameter
// is accepted as a fallback.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithBuyer(r.Context(), claims.UID, string(claims.Role))
			if logg != nil {
				ctx = logg.WithBuyer(ctx, claims.UID, string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
