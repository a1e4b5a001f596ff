/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/multisig/chainfetch/blockchaininfo"
	"github.com/multisig/chainfetch/log"
	"github.com/multisig/chainfetch/scheduler"
)

// UnspentOutputsGetter looks up unspent outputs of an address.
// It is implemented by *blockchaininfo.Client.
type UnspentOutputsGetter interface {
	UnspentOutputs(ctx context.Context, address string) (json.RawMessage, error)
}

// HealthCheck returns the status of every component, true meaning healthy.
type HealthCheck func() map[string]bool

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

type unspentHandler struct {
	getter        UnspentOutputsGetter
	lookupTimeout time.Duration
}

func (h *unspentHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromContext(r.Context())
	address := chi.URLParam(r, "address")

	ctx, cancel := context.WithTimeout(r.Context(), h.lookupTimeout)
	defer cancel()

	payload, err := h.getter.UnspentOutputs(ctx, address)
	if err != nil {
		respondLookupError(rw, r, err)
		return
	}
	if !json.Valid(payload) {
		logger.Error("upstream returned malformed JSON", log.Int("payload_size", len(payload)))
		RespondError(rw, http.StatusBadGateway,
			NewError(ErrCodeUpstreamUnavailable, "Upstream returned a malformed payload."), logger)
		return
	}
	RespondCodeAndRawJSON(rw, http.StatusOK, payload, logger)
}

func respondLookupError(rw http.ResponseWriter, r *http.Request, err error) {
	logger := GetLoggerFromContext(r.Context())
	switch {
	case errors.Is(err, blockchaininfo.ErrEmptyAddress):
		RespondError(rw, http.StatusBadRequest, NewError(ErrCodeInvalidAddress, "Address cannot be empty."), logger)
	case errors.Is(err, scheduler.ErrRetriesExhausted):
		RespondError(rw, http.StatusBadGateway,
			NewError(ErrCodeUpstreamUnavailable, "Upstream lookup failed after all retries."), logger)
	case errors.Is(err, scheduler.ErrStopped):
		RespondError(rw, http.StatusServiceUnavailable,
			NewError(ErrCodeServiceStopping, "Service is stopping."), logger)
	case errors.Is(r.Context().Err(), context.Canceled):
		rw.WriteHeader(StatusClientClosedRequest)
	case errors.Is(err, context.DeadlineExceeded):
		RespondError(rw, http.StatusGatewayTimeout,
			NewError(ErrCodeLookupTimeout, "Lookup did not complete in time."), logger)
	default:
		logger.Error("unspent outputs lookup failed", log.Error(err))
		RespondInternalError(rw, logger)
	}
}

func healthCheckHandler(check HealthCheck) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		respData := healthCheckResponseData{Components: map[string]bool{}}
		respStatus := http.StatusOK
		if check != nil {
			for name, healthy := range check() {
				respData.Components[name] = healthy
				if !healthy {
					respStatus = http.StatusServiceUnavailable
				}
			}
		}
		RespondCodeAndJSON(rw, respStatus, respData, GetLoggerFromContext(r.Context()))
	}
}

func notFoundHandler(rw http.ResponseWriter, r *http.Request) {
	RespondError(rw, http.StatusNotFound, NewError(ErrCodeNotFound, "Not found."), GetLoggerFromContext(r.Context()))
}

func methodNotAllowedHandler(rw http.ResponseWriter, r *http.Request) {
	RespondError(rw, http.StatusMethodNotAllowed,
		NewError(ErrCodeMethodNotAllowed, "Method not allowed."), GetLoggerFromContext(r.Context()))
}
