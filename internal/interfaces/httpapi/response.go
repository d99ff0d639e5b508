package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/match-digest/internal/usecase"
)

const (
	msgMissingFixture = "Match ID is required."
	msgInternal       = "Internal Server Error"
)

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type mappedError struct {
	HTTPStatus int
	Message    string
}

// responseGuard lets exactly one terminal response through per request.
type responseGuard struct {
	http.ResponseWriter
	written atomic.Bool
}

func newResponseGuard(w http.ResponseWriter) *responseGuard {
	if g, ok := w.(*responseGuard); ok {
		return g
	}
	return &responseGuard{ResponseWriter: w}
}

func (g *responseGuard) claim() bool {
	return g.written.CompareAndSwap(false, true)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) bool {
	ctx, span := startSpan(ctx, "httpapi.writeJSON")
	defer span.End()

	guard := newResponseGuard(w)
	if !guard.claim() {
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
	return true
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) bool {
	ctx, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	mapped := mapError(err)
	body := errorBody{Error: mapped.Message}
	if mapped.HTTPStatus != http.StatusInternalServerError || errors.Is(err, usecase.ErrCompletion) {
		body.Details = err.Error()
	}
	return writeJSON(ctx, w, mapped.HTTPStatus, body)
}

func writeInternalError(ctx context.Context, w http.ResponseWriter) bool {
	return writeJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgInternal})
}

func mapError(err error) mappedError {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return mappedError{HTTPStatus: http.StatusBadRequest, Message: msgMissingFixture}
	case errors.Is(err, usecase.ErrDependencyUnavailable):
		return mappedError{HTTPStatus: http.StatusServiceUnavailable, Message: "Upstream dependency unavailable"}
	case errors.Is(err, usecase.ErrNarrativeTimeout), errors.Is(err, context.DeadlineExceeded):
		return mappedError{HTTPStatus: http.StatusGatewayTimeout, Message: "Timed out waiting for match data"}
	case errors.Is(err, usecase.ErrUpstreamStream):
		return mappedError{HTTPStatus: http.StatusBadGateway, Message: "Error reading match stream"}
	case errors.Is(err, usecase.ErrCompletion):
		return mappedError{HTTPStatus: http.StatusInternalServerError, Message: "Error querying OpenAI API"}
	default:
		return mappedError{HTTPStatus: http.StatusInternalServerError, Message: msgInternal}
	}
}
