package middleware

import "context"

type contextKey string

const (
	ctxBuyerUID  contextKey = "buyer_uid"
	ctxBuyerRole contextKey = "buyer_role"
)

// BuyerUIDFromContext returns the authenticated buyer uid, or "" when absent.
func BuyerUIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxBuyerUID).(string); ok {
		return v
	}
	return ""
}

func BuyerRoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxBuyerRole).(string); ok {
		return v
	}
	return ""
}

// WithBuyer injects the buyer identity into the context. Handler tests use it
// to skip token minting.
func WithBuyer(ctx context.Context, uid, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxBuyerUID, uid)
	return context.WithValue(ctx, ctxBuyerRole, role)
}
