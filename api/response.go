/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/multisig/chainfetch/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// ErrorDomain is the domain of every error returned by the API.
const ErrorDomain = "Chainfetch"

// StatusClientClosedRequest is the non-standard status code used when the client has gone away.
const StatusClientClosedRequest = 499

// Error codes.
const (
	ErrCodeInternal            = "internalError"
	ErrCodeNotFound            = "notFound"
	ErrCodeMethodNotAllowed    = "methodNotAllowed"
	ErrCodeInvalidAddress      = "invalidAddress"
	ErrCodeUpstreamUnavailable = "upstreamUnavailable"
	ErrCodeServiceStopping     = "serviceStopping"
	ErrCodeLookupTimeout       = "lookupTimeout"
)

// Error represents error details in a response body.
type Error struct {
	Domain  string `json:"domain"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// NewError creates a new Error in the API's domain.
func NewError(code, message string) *Error {
	return &Error{Domain: ErrorDomain, Code: code, Message: message}
}

// ErrorResponseData is the body of a response with an error.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

// jsonMarshal does JSON marshaling with disabled HTML escaping.
func jsonMarshal(v interface{}) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes()[:buffer.Len()-1], nil
}

// RespondCodeAndJSON sends a response with the passed status code and JSON-encoded data.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	respJSON, err := jsonMarshal(respData)
	if err != nil {
		logger.Error("error while marshaling json for response body", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	RespondCodeAndRawJSON(rw, statusCode, respJSON, logger)
}

// RespondCodeAndRawJSON sends a response with the passed status code and an already encoded JSON body.
func RespondCodeAndRawJSON(rw http.ResponseWriter, statusCode int, body []byte, logger log.FieldLogger) {
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err := rw.Write(body); err != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

// RespondError writes err wrapped into ErrorResponseData and logs its code and message.
func RespondError(rw http.ResponseWriter, statusCode int, err *Error, logger log.FieldLogger) {
	logger.Error("error in response",
		log.String("error_code", err.Code), log.String("error_message", err.Message))
	RespondCodeAndJSON(rw, statusCode, ErrorResponseData{Err: err}, logger)
}

// RespondInternalError sends a response with 500 status code and an internal error in the body.
func RespondInternalError(rw http.ResponseWriter, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewError(ErrCodeInternal, "Internal error."), logger)
}
