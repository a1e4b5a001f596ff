/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import "context"

// Transport performs one call to the remote service.
// Any non-nil error counts as a failed attempt, no matter what it is.
type Transport[T, P any] interface {
	Call(ctx context.Context, target T) (P, error)
}

// The TransportFunc type is an adapter to allow the use of ordinary functions as Transport.
type TransportFunc[T, P any] func(ctx context.Context, target T) (P, error)

// Call implements Transport.
func (f TransportFunc[T, P]) Call(ctx context.Context, target T) (P, error) {
	return f(ctx, target)
}
