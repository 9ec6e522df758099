package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/agromarket-backend/pkg/config"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/metrics"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

const maxResponseBytes = 1 << 20

// Client talks to an SSLCommerz compatible hosted gateway.
type Client struct {
	baseURL    string
	storeID    string
	storePass  string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[types.Fields]
	metrics    *metrics.PaymentMetrics
	logg       *logger.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records gateway latency.
func WithMetrics(m *metrics.PaymentMetrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg config.GatewayConfig, logg *logger.Logger, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.StoreID) == "" || strings.TrimSpace(cfg.StorePassword) == "" {
		return nil, fmt.Errorf("gateway store credentials required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	c := &Client{
		baseURL:    cfg.Endpoint(),
		storeID:    cfg.StoreID,
		storePass:  cfg.StorePassword,
		timeout:    timeout,
		httpClient: &http.Client{},
		logg:       logg,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[types.Fields](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.logg == nil {
				return
			}
			ctx := c.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			c.logg.Warn(ctx, "gateway circuit breaker state changed")
		},
	})
	return c, nil
}

// InitSession opens a hosted payment session.
func (c *Client) InitSession(ctx context.Context, req SessionRequest) (*Session, error) {
	form := req.Form()
	form.Set("store_id", c.storeID)
	form.Set("store_passwd", c.storePass)

	fields, err := c.call(ctx, "init_session", func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+InitPath, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		Status:       fields.Get("status"),
		SessionKey:   fields.Get("sessionkey"),
		GatewayURL:   fields.Get("GatewayPageURL"),
		RedirectURL:  fields.Get("redirectGatewayURL"),
		FailedReason: fields.Get("failedreason"),
		Raw:          fields,
	}, nil
}

// Validate asks the gateway whether valID belongs to a settled payment.
func (c *Client) Validate(ctx context.Context, valID string) (*Validation, error) {
	valID = strings.TrimSpace(valID)
	if valID == "" {
		return nil, errors.New("val_id required")
	}
	q := url.Values{}
	q.Set("val_id", valID)
	q.Set("store_id", c.storeID)
	q.Set("store_passwd", c.storePass)
	q.Set("format", "json")

	fields, err := c.call(ctx, "validate", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ValidationPath+"?"+q.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}
	return &Validation{Status: fields.Get("status"), Fields: fields}, nil
}

func (c *Client) call(ctx context.Context, operation string, build func(context.Context) (*http.Request, error)) (types.Fields, error) {
	started := time.Now()
	fields, err := c.breaker.Execute(func() (types.Fields, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := build(callCtx)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read gateway response: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return decodeFields(body)
	})
	c.metrics.ObserveGateway(operation, err, time.Since(started))
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fields, err
}

// decodeFields flattens a JSON object into strings. Nested values are kept as
// their JSON text.
func decodeFields(body []byte) (types.Fields, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	out := make(types.Fields, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		if string(v) == "null" {
			out[k] = ""
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}
