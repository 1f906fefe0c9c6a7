// Package context carries observability identifiers (request id, parking
// lot) across API handlers, the dispatcher and outbound clients.
package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "observability_request_id"
	lotIDKey     contextKey = "observability_parking_lot_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithLotID(ctx context.Context, lotID int64) context.Context {
	if ctx == nil || lotID == 0 {
		return ctx
	}
	return context.WithValue(ctx, lotIDKey, lotID)
}

func LotIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	value, _ := ctx.Value(lotIDKey).(int64)
	return value
}
