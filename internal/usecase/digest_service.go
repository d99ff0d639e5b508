package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/match-digest/internal/domain/digest"
	"github.com/riskibarqy/match-digest/internal/domain/match"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultPartialTimeout = 30 * time.Second
	defaultFramesTimeout  = 60 * time.Second

	outcomeOK          = "ok"
	outcomeInvalid     = "invalid_input"
	outcomeUpstream    = "upstream_error"
	outcomeTimeout     = "timeout"
	outcomeCompletion  = "completion_error"
	outcomeUnavailable = "unavailable"
	outcomeCancelled   = "cancelled"
	outcomeInternal    = "internal_error"
)

// FixtureRequest identifies the fixture to digest. The id is interpolated
// into upstream paths, so it must be path-safe.
type FixtureRequest struct {
	FixtureID string `validate:"required,max=64,fixtureid"`
}

var fixtureValidator = newFixtureValidator()

func newFixtureValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("fixtureid", validFixtureID); err != nil {
		panic(fmt.Sprintf("register fixtureid validation: %v", err))
	}
	return v
}

func validFixtureID(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), "/?#% \t\r\n")
}

type DigestServiceConfig struct {
	Source         match.Source
	Accumulator    *FactAccumulator
	Renderer       *NarrativeRenderer
	Options        digest.Options
	PartialTimeout time.Duration
	FramesTimeout  time.Duration
	Logger         *logging.Logger
	Metrics        DigestMetrics
}

// DigestService runs the per-request workflow: partial match, then frames,
// then rendering. Every call ends in exactly one terminal outcome.
type DigestService struct {
	source         match.Source
	accumulator    *FactAccumulator
	renderer       *NarrativeRenderer
	options        digest.Options
	partialTimeout time.Duration
	framesTimeout  time.Duration
	logger         *logging.Logger
	metrics        DigestMetrics
}

func NewDigestService(cfg DigestServiceConfig) *DigestService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics()
	}
	partialTimeout := cfg.PartialTimeout
	if partialTimeout <= 0 {
		partialTimeout = defaultPartialTimeout
	}
	framesTimeout := cfg.FramesTimeout
	if framesTimeout <= 0 {
		framesTimeout = defaultFramesTimeout
	}

	return &DigestService{
		source:         cfg.Source,
		accumulator:    cfg.Accumulator,
		renderer:       cfg.Renderer,
		options:        cfg.Options,
		partialTimeout: partialTimeout,
		framesTimeout:  framesTimeout,
		logger:         logger,
		metrics:        metrics,
	}
}

// digestRun tracks the stage of one request.
type digestRun struct {
	fixtureID string
	stage     digest.Stage
	logger    *logging.Logger
}

func (r *digestRun) transition(ctx context.Context, next digest.Stage) bool {
	if r.stage.Terminal() {
		return false
	}
	r.logger.DebugContext(ctx, "digest stage transition",
		"fixture_id", r.fixtureID,
		"from", string(r.stage),
		"to", string(next),
	)
	r.stage = next
	return true
}

func (s *DigestService) Generate(ctx context.Context, req FixtureRequest) (result match.MatchDigest, err error) {
	req.FixtureID = strings.TrimSpace(req.FixtureID)
	if err := fixtureValidator.StructCtx(ctx, req); err != nil {
		s.metrics.RecordOutcome(outcomeInvalid)
		return match.MatchDigest{}, fmt.Errorf("%w: fixture id: %v", ErrInvalidInput, err)
	}

	ctx, span := startUsecaseSpan(ctx, "usecase.DigestService.Generate", attribute.String("fixture.id", req.FixtureID))
	defer func() { endSpanWithError(span, err) }()

	started := time.Now()
	run := &digestRun{fixtureID: req.FixtureID, logger: s.logger}
	defer func() {
		outcome := outcomeLabel(err)
		if err != nil {
			run.transition(ctx, digest.StageFailed)
			s.logger.WarnContext(ctx, "digest request failed",
				"fixture_id", req.FixtureID,
				"outcome", outcome,
				"error", err,
			)
		} else {
			run.transition(ctx, digest.StageResponded)
			s.logger.InfoContext(ctx, "digest request completed",
				"fixture_id", req.FixtureID,
				"goals", len(result.Goals),
				"cards", len(result.Cards),
				"duration_ms", time.Since(started).Milliseconds(),
			)
		}
		s.metrics.RecordOutcome(outcome)
	}()

	run.transition(ctx, digest.StageAwaitingPartial)
	facts, err := runStage(ctx, s, digest.StageAwaitingPartial, func(ctx context.Context) (match.FactSet, error) {
		return s.collectFacts(ctx, req.FixtureID)
	})
	if err != nil {
		return match.MatchDigest{}, err
	}

	run.transition(ctx, digest.StageAwaitingFrames)
	frames, err := runStage(ctx, s, digest.StageAwaitingFrames, func(ctx context.Context) ([]match.PossessionFrame, error) {
		return s.awaitFrames(ctx, req.FixtureID)
	})
	if err != nil {
		return match.MatchDigest{}, err
	}

	run.transition(ctx, digest.StageRendering)
	narrative, err := runStage(ctx, s, digest.StageRendering, func(ctx context.Context) (digest.Narrative, error) {
		return s.renderer.Render(ctx, facts, frames, s.options)
	})
	if err != nil {
		if errors.Is(err, ErrEmptyNarrative) {
			return match.MatchDigest{}, fmt.Errorf("%w: %w", ErrNarrativeTimeout, err)
		}
		return match.MatchDigest{}, err
	}

	return match.MatchDigest{
		FixtureID:    req.FixtureID,
		Digest:       narrative.Digest,
		ImageURL:     narrative.ImageURL,
		Goals:        facts.Goals,
		Cards:        facts.Cards,
		HomeGoals:    facts.HomeGoals,
		AwayGoals:    facts.AwayGoals,
		HomeTeamName: facts.ClubDisplay(facts.HomeTeam.ClubID),
		AwayTeamName: facts.ClubDisplay(facts.AwayTeam.ClubID),
		HomeTeamWins: facts.HomeTeam.Wins,
		AwayTeamWins: facts.AwayTeam.Wins,
	}, nil
}

func (s *DigestService) collectFacts(ctx context.Context, fixtureID string) (match.FactSet, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, s.partialTimeout)
	defer cancel()

	partial, err := s.source.PartialMatch(phaseCtx, fixtureID)
	if err != nil {
		return match.FactSet{}, phaseError(ctx, phaseCtx, err, "partial match", s.partialTimeout)
	}
	facts, err := s.accumulator.Accumulate(phaseCtx, partial, s.options.ResolveNames)
	if err != nil {
		return match.FactSet{}, phaseError(ctx, phaseCtx, err, "partial match", s.partialTimeout)
	}
	return facts, nil
}

func (s *DigestService) awaitFrames(ctx context.Context, fixtureID string) ([]match.PossessionFrame, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, s.framesTimeout)
	defer cancel()

	frames, err := s.source.MatchFrames(phaseCtx, fixtureID)
	if err != nil {
		return nil, phaseError(ctx, phaseCtx, err, "match frames", s.framesTimeout)
	}
	return frames, nil
}

// phaseError prefers the caller's context error, then reports an expired
// phase deadline as ErrNarrativeTimeout.
func phaseError(parent, phaseCtx context.Context, err error, phase string, timeout time.Duration) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no usable %s message within %s", ErrNarrativeTimeout, phase, timeout)
	}
	return err
}

func runStage[T any](ctx context.Context, s *DigestService, stage digest.Stage, fn func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	var (
		out T
		err error
	)
	var catcher panics.Catcher
	catcher.Try(func() {
		out, err = fn(ctx)
	})
	s.metrics.ObserveStage(stage, time.Since(started))

	if recovered := catcher.Recovered(); recovered != nil {
		s.logger.ErrorContext(ctx, "digest stage panicked",
			"stage", string(stage),
			"panic", recovered.String(),
		)
		var zero T
		return zero, fmt.Errorf("%s stage panicked: %w", stage, recovered.AsError())
	}
	return out, err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrInvalidInput):
		return outcomeInvalid
	case errors.Is(err, ErrDependencyUnavailable):
		return outcomeUnavailable
	case errors.Is(err, ErrNarrativeTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrUpstreamStream):
		return outcomeUpstream
	case errors.Is(err, ErrCompletion):
		return outcomeCompletion
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCancelled
	default:
		return outcomeInternal
	}
}
