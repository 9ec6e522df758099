package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/agromarket-backend/api/middleware"
	"github.com/angelmondragon/agromarket-backend/api/responses"
	"github.com/angelmondragon/agromarket-backend/api/validators"
	"github.com/angelmondragon/agromarket-backend/internal/checkout"
	"github.com/angelmondragon/agromarket-backend/internal/payments"
	"github.com/angelmondragon/agromarket-backend/internal/reconcile"
	"github.com/angelmondragon/agromarket-backend/pkg/db"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

const (
	maxNotesLength = 1000

	msgProcessingError = "Payment processing error"
	msgPaymentFailed   = "Payment failed"
)

// CallbackReconciler is the surface the callback handlers need from reconcile.Service.
type CallbackReconciler interface {
	Success(ctx context.Context, fields types.Fields) (*reconcile.Result, error)
	Fail(ctx context.Context, fields types.Fields) (*reconcile.Result, error)
	Cancel(ctx context.Context, fields types.Fields) (*reconcile.Result, error)
	IPN(ctx context.Context, fields types.Fields) (*reconcile.Result, error)
}

type paymentInitRequest struct {
	PaymentMethod       string  `json:"paymentMethod" validate:"required"`
	Notes               *string `json:"notes,omitempty"`
	SpecialInstructions *string `json:"specialInstructions,omitempty"`
}

type paymentInitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*checkout.InitiateResult
}

// PaymentInit turns the caller's cart into vendor orders and opens a gateway session.
func PaymentInit(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		uid := middleware.BuyerUIDFromContext(ctx)
		if uid == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer context missing"))
			return
		}
		role := enums.BuyerRole(middleware.BuyerRoleFromContext(ctx))
		if !role.IsValid() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "buyer role not allowed to check out"))
			return
		}

		var body paymentInitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Initiate(ctx, checkout.InitiateInput{
			UID:                 uid,
			Role:                role,
			PaymentMethod:       strings.TrimSpace(body.PaymentMethod),
			Notes:               sanitized(body.Notes),
			SpecialInstructions: sanitized(body.SpecialInstructions),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, paymentInitResponse{
			Success:        true,
			Message:        "Payment session initiated successfully",
			InitiateResult: result,
		})
	}
}

func sanitized(value *string) *string {
	if value == nil {
		return nil
	}
	out := validators.SanitizeString(*value, maxNotesLength)
	if out == "" {
		return nil
	}
	return &out
}

// PaymentSuccess handles the browser return after a completed payment.
func PaymentSuccess(rec CallbackReconciler, frontendURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fields := validators.CallbackFields(r)
		tranID := fields.Get("tran_id")
		if logg != nil && tranID != "" {
			ctx = logg.WithTransactionID(ctx, tranID)
		}

		res, err := rec.Success(ctx, fields)
		query := url.Values{}
		if tranID != "" {
			query.Set("tran_id", tranID)
		}
		switch {
		case err != nil:
			query.Set("error", callbackErrorMessage(ctx, logg, err, msgProcessingError))
			responses.Redirect(w, r, paymentPage(frontendURL, "fail"), query)
		case res.Outcome == reconcile.OutcomePending:
			query.Set("status", string(enums.PaymentStatusPending))
			responses.Redirect(w, r, paymentPage(frontendURL, "success"), query)
		case res.Status == enums.PaymentStatusValid:
			responses.Redirect(w, r, paymentPage(frontendURL, "success"), query)
		default:
			// A duplicate success redirect for a payment that already closed.
			query.Set("error", msgPaymentFailed)
			responses.Redirect(w, r, paymentPage(frontendURL, "fail"), query)
		}
	}
}

// PaymentFail handles the browser return after a declined payment.
func PaymentFail(rec CallbackReconciler, frontendURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fields := validators.CallbackFields(r)
		tranID := fields.Get("tran_id")
		if logg != nil && tranID != "" {
			ctx = logg.WithTransactionID(ctx, tranID)
		}

		message := fields.Get("failedreason")
		if message == "" {
			message = msgPaymentFailed
		}
		if _, err := rec.Fail(ctx, fields); err != nil {
			message = callbackErrorMessage(ctx, logg, err, message)
		}

		query := url.Values{}
		query.Set("tran_id", tranID)
		query.Set("error", message)
		responses.Redirect(w, r, paymentPage(frontendURL, "fail"), query)
	}
}

// PaymentCancel handles the browser return after the buyer abandoned the gateway page.
func PaymentCancel(rec CallbackReconciler, frontendURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fields := validators.CallbackFields(r)
		tranID := fields.Get("tran_id")
		if logg != nil && tranID != "" {
			ctx = logg.WithTransactionID(ctx, tranID)
		}

		query := url.Values{}
		query.Set("tran_id", tranID)
		if _, err := rec.Cancel(ctx, fields); err != nil && !expectedCallbackError(err) {
			query.Set("error", callbackErrorMessage(ctx, logg, err, msgProcessingError))
		}
		responses.Redirect(w, r, paymentPage(frontendURL, "cancel"), query)
	}
}

// PaymentIPN acknowledges the gateway's server-to-server notification.
// OK stops gateway retries, ERROR asks for another attempt.
func PaymentIPN(rec CallbackReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fields := validators.CallbackFields(r)
		if tranID := fields.Get("tran_id"); logg != nil && tranID != "" {
			ctx = logg.WithTransactionID(ctx, tranID)
		}

		res, err := rec.IPN(ctx, fields)
		switch {
		case pkgerrors.Is(err, pkgerrors.CodeValidation):
			responses.WriteText(w, http.StatusBadRequest, pkgerrors.As(err).Message())
		case err != nil:
			if logg != nil {
				logg.Error(ctx, "payment.ipn_failed", err)
			}
			responses.WriteText(w, http.StatusInternalServerError, "ERROR")
		default:
			if logg != nil {
				logg.Info(logg.WithField(ctx, "outcome", string(res.Outcome)), "payment.ipn_handled")
			}
			responses.WriteText(w, http.StatusOK, "OK")
		}
	}
}

// expectedCallbackError reports whether err is a known, buyer-facing
// reconciliation failure rather than an internal fault.
func expectedCallbackError(err error) bool {
	return pkgerrors.Is(err, pkgerrors.CodeValidation) || pkgerrors.Is(err, pkgerrors.CodeReconcile)
}

// callbackErrorMessage picks the text shown on the frontend page. Internal
// faults are logged and collapse into fallback.
func callbackErrorMessage(ctx context.Context, logg *logger.Logger, err error, fallback string) string {
	if expectedCallbackError(err) {
		if logg != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "payment.callback_rejected")
		}
		if msg := pkgerrors.As(err).Message(); msg != "" {
			return msg
		}
		return fallback
	}
	if logg != nil {
		logg.Error(ctx, "payment.callback_failed", err)
	}
	return msgProcessingError
}

func paymentPage(frontendURL, page string) string {
	return strings.TrimRight(frontendURL, "/") + "/payment/" + page
}

type paymentVerifyResponse struct {
	Success       bool                `json:"success"`
	TransactionID string              `json:"transactionId"`
	Amount        decimal.Decimal     `json:"amount"`
	Status        enums.PaymentStatus `json:"status"`
	OrderNumbers  []string            `json:"orderNumbers"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// PaymentVerify returns the caller's own transaction. Another buyer's
// transaction is reported as missing.
func PaymentVerify(repo payments.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		uid := middleware.BuyerUIDFromContext(ctx)
		if uid == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer context missing"))
			return
		}

		tranID := strings.TrimSpace(chi.URLParam(r, "transactionId"))
		payment, err := repo.FindByTranID(ctx, tranID)
		if err != nil {
			if db.IsNotFound(err) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "Payment not found"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment"))
			return
		}
		if payment.UID != uid {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "Payment not found"))
			return
		}

		responses.WriteJSON(w, http.StatusOK, paymentVerifyResponse{
			Success:       true,
			TransactionID: payment.TranID,
			Amount:        payment.Amount,
			Status:        payment.Status,
			OrderNumbers:  correlatedOrderNumbers(ctx, logg, payment.OrderNumber, payment.ValidationData, payment.GatewayResponse),
			CreatedAt:     payment.CreatedAt,
		})
	}
}

// correlatedOrderNumbers reads the correlation payload from the first
// gateway payload that carries one.
func correlatedOrderNumbers(ctx context.Context, logg *logger.Logger, primary string, sources ...types.Fields) []string {
	for _, src := range sources {
		raw := src.Get("value_a")
		if raw == "" {
			continue
		}
		correlation, err := payments.DecodeCorrelation(raw, primary)
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "payment.correlation_malformed")
		}
		return correlation.OrderNumbers
	}
	return []string{primary}
}

type paymentStatusOrder struct {
	OrderNumber   string                   `json:"orderNumber"`
	Status        enums.OrderStatus        `json:"status"`
	PaymentStatus enums.OrderPaymentStatus `json:"paymentStatus"`
}

type paymentStatusResponse struct {
	Success       bool                `json:"success"`
	TransactionID string              `json:"transactionId"`
	Amount        decimal.Decimal     `json:"amount"`
	Status        enums.PaymentStatus `json:"status"`
	CreatedAt     time.Time           `json:"createdAt"`
	Order         *paymentStatusOrder `json:"order"`
}

// PaymentStatus is the public lookup used by the frontend result pages. It
// never exposes card or customer data.
func PaymentStatus(repo payments.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tranID := strings.TrimSpace(chi.URLParam(r, "tran_id"))
		payment, err := repo.FindByTranID(ctx, tranID)
		if err != nil {
			if db.IsNotFound(err) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "Payment not found"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment"))
			return
		}

		resp := paymentStatusResponse{
			Success:       true,
			TransactionID: payment.TranID,
			Amount:        payment.Amount,
			Status:        payment.Status,
			CreatedAt:     payment.CreatedAt,
		}
		if order := payment.Order; order != nil {
			resp.Order = &paymentStatusOrder{
				OrderNumber:   order.OrderNumber,
				Status:        order.Status,
				PaymentStatus: order.PaymentStatus,
			}
		}
		responses.WriteJSON(w, http.StatusOK, resp)
	}
}
