package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/agromarket-backend/internal/checkout"
	"github.com/angelmondragon/agromarket-backend/internal/notifications"
	"github.com/angelmondragon/agromarket-backend/internal/payments"
	"github.com/angelmondragon/agromarket-backend/internal/reconcile"
	pkgAuth "github.com/angelmondragon/agromarket-backend/pkg/auth"
	"github.com/angelmondragon/agromarket-backend/pkg/config"
	"github.com/angelmondragon/agromarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/metrics"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCheckout struct{ called bool }

func (s *stubCheckout) Initiate(context.Context, checkout.InitiateInput) (*checkout.InitiateResult, error) {
	s.called = true
	return &checkout.InitiateResult{TranID: "TXN-R1"}, nil
}

type stubReconciler struct{ channels []string }

func (s *stubReconciler) record(channel string) (*reconcile.Result, error) {
	s.channels = append(s.channels, channel)
	return &reconcile.Result{TranID: "TXN-R1", Status: enums.PaymentStatusValid, Outcome: reconcile.OutcomeSettled}, nil
}

func (s *stubReconciler) Success(context.Context, types.Fields) (*reconcile.Result, error) {
	return s.record("success")
}

func (s *stubReconciler) Fail(context.Context, types.Fields) (*reconcile.Result, error) {
	return s.record("fail")
}

func (s *stubReconciler) Cancel(context.Context, types.Fields) (*reconcile.Result, error) {
	return s.record("cancel")
}

func (s *stubReconciler) IPN(context.Context, types.Fields) (*reconcile.Result, error) {
	return s.record("ipn")
}

func testConfig() *config.Config {
	return &config.Config{
		App:  config.AppConfig{Env: "dev"},
		JWT:  config.JWTConfig{Secret: "secret", Issuer: "agromarket", ExpirationMinutes: 30},
		URLs: config.URLConfig{BackendURL: "https://api.agromarket.test", FrontendURL: "https://agromarket.test"},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *stubCheckout, *stubReconciler) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.NewPaymentMetrics(reg).IncCheckout("initiated")

	svc := &stubCheckout{}
	rec := &stubReconciler{}
	router := NewRouter(Dependencies{
		Config:     testConfig(),
		Logger:     logger.Nop(),
		DB:         stubPinger{},
		Redis:      stubPinger{},
		Checkout:   svc,
		Reconciler: rec,
		Payments:   payments.NewRepository(dbtest.Open(t)),
		Registry:   notifications.NewRegistry(logger.Nop()),
		Gatherer:   reg,
	})
	return router, svc, rec
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
		assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "agromarket_checkout")
}

func TestRouterInitRequiresToken(t *testing.T) {
	router, svc, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/payment/init", strings.NewReader(`{"paymentMethod":"card"}`)))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.False(t, svc.called)

	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{UID: "uid-1", Role: enums.BuyerRoleClient})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/payment/init", strings.NewReader(`{"paymentMethod":"card"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.True(t, svc.called)
}

func TestRouterCallbacksArePublic(t *testing.T) {
	router, _, rec := newTestRouter(t)

	requests := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/payment/success?tran_id=TXN-R1", nil),
		httptest.NewRequest(http.MethodPost, "/api/payment/fail", strings.NewReader("tran_id=TXN-R1")),
		httptest.NewRequest(http.MethodPost, "/api/payment/cancel", strings.NewReader("tran_id=TXN-R1")),
	}
	for _, req := range requests {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusSeeOther, resp.Code, req.URL.Path)
		assert.True(t, strings.HasPrefix(resp.Header().Get("Location"), "https://agromarket.test/payment/"))
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/payment/ipn", strings.NewReader("tran_id=TXN-R1&status=VALID")))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "OK", resp.Body.String())

	assert.Equal(t, []string{"success", "fail", "cancel", "ipn"}, rec.channels)
}

func TestRouterProtectsVerifyAndStream(t *testing.T) {
	router, _, _ := newTestRouter(t)
	for _, path := range []string{"/api/payment/verify/TXN-R1", "/api/notifications/stream"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/payment/status/TXN-R1", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
