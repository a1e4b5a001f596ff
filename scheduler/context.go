/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyAttempt
)

func newContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext returns the ID of the request a Transport call is made for.
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func newContextWithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, ctxKeyAttempt, attempt)
}

// GetAttemptFromContext returns the 1-based number of the attempt a Transport call belongs to.
// Zero means the context was not created by a Scheduler.
func GetAttemptFromContext(ctx context.Context) int {
	if attempt, ok := ctx.Value(ctxKeyAttempt).(int); ok {
		return attempt
	}
	return 0
}
