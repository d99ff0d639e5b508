package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/riskibarqy/match-digest/internal/domain/match"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/usecase"
	"go.opentelemetry.io/otel/attribute"
)

const rootMessage = "match digest server is running"

// DigestGenerator runs the digest workflow for one fixture.
type DigestGenerator interface {
	Generate(ctx context.Context, req usecase.FixtureRequest) (match.MatchDigest, error)
}

type Handler struct {
	digests DigestGenerator
	logger  *logging.Logger
}

func NewHandler(digests DigestGenerator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		digests: digests,
		logger:  logger,
	}
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rootMessage)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetMatchDigest(w http.ResponseWriter, r *http.Request) {
	fixtureID := r.URL.Query().Get("fixtureId")
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetMatchDigest", attribute.String("fixture.id", fixtureID))
	defer span.End()

	guard := newResponseGuard(w)
	if strings.TrimSpace(fixtureID) == "" {
		writeJSON(ctx, guard, http.StatusBadRequest, errorBody{Error: msgMissingFixture})
		return
	}

	result, err := h.digests.Generate(ctx, usecase.FixtureRequest{FixtureID: fixtureID})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			h.logger.InfoContext(ctx, "client disconnected before digest was ready", "fixture_id", fixtureID)
			return
		}
		h.logger.WarnContext(ctx, "match digest failed", "fixture_id", fixtureID, "error", err)
		writeError(ctx, guard, err)
		return
	}

	annotateRequest(ctx,
		attribute.Int("digest.goals", len(result.Goals)),
		attribute.Int("digest.cards", len(result.Cards)),
		attribute.Bool("digest.image", result.ImageURL != ""),
	)
	if !writeJSON(ctx, guard, http.StatusOK, toMatchDigestDTO(result)) {
		h.logger.WarnContext(ctx, "digest response already written", "fixture_id", fixtureID)
	}
}
