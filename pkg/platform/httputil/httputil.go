// Package httputil holds the JSON request and response helpers shared by handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "qualtrack/pkg/domain-errors"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// Preparable requests normalize themselves and then validate.
type Preparable interface {
	Normalize()
	Validate() error
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to its HTTP status. Descriptions of internal
// errors are never sent to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	msg := ""
	if de, ok := dErrors.As(err); ok {
		code = de.Code
		msg = de.Message
	}
	resp := errorResponse{Error: string(code)}
	status := dErrors.ToHTTPStatus(code)
	if status < http.StatusInternalServerError {
		resp.ErrorDescription = msg
	}
	WriteJSON(w, status, resp)
}

// DecodeAndPrepare decodes the JSON body into T, normalizes and validates it.
// On failure it writes the error response and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Preparable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON in request body"))
		return nil, false
	}
	p := PT(&req)
	p.Normalize()
	if err := p.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}

// LogError logs err at warn for client errors and error for internal ones.
func LogError(ctx context.Context, logger *slog.Logger, msg, requestID string, err error) {
	if de, ok := dErrors.As(err); ok && dErrors.ToHTTPStatus(de.Code) < http.StatusInternalServerError {
		logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
}
