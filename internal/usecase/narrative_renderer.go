package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/riskibarqy/match-digest/internal/domain/digest"
	"github.com/riskibarqy/match-digest/internal/domain/match"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultStyleDirective = "digest this passage of play, abstracted from a football match into a coherent narrative:"
	imagePromptPrefix     = "An illustration of this moment from a football match: "
	maxImagePromptRunes   = 1000
)

// TokenCounter counts prompt tokens for the configured completion model.
type TokenCounter interface {
	Count(text string) (int, error)
}

type NarrativeRendererConfig struct {
	Completer       digest.TextCompleter
	Images          digest.ImageGenerator
	Tokens          TokenCounter
	MaxPromptTokens int
	StyleDirective  string
	Logger          *logging.Logger
	Metrics         DigestMetrics
}

// NarrativeRenderer turns facts and possession frames into a prompt and asks
// the completion collaborator for the digest.
type NarrativeRenderer struct {
	completer       digest.TextCompleter
	images          digest.ImageGenerator
	tokens          TokenCounter
	maxPromptTokens int
	styleDirective  string
	logger          *logging.Logger
	metrics         DigestMetrics
}

func NewNarrativeRenderer(cfg NarrativeRendererConfig) *NarrativeRenderer {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics()
	}
	directive := strings.TrimSpace(cfg.StyleDirective)
	if directive == "" {
		directive = DefaultStyleDirective
	}
	return &NarrativeRenderer{
		completer:       cfg.Completer,
		images:          cfg.Images,
		tokens:          cfg.Tokens,
		maxPromptTokens: cfg.MaxPromptTokens,
		styleDirective:  directive,
		logger:          logger,
		metrics:         metrics,
	}
}

// PossessionLines renders one line per frame in received order.
func (r *NarrativeRenderer) PossessionLines(facts match.FactSet, frames []match.PossessionFrame) []string {
	lines := make([]string, 0, len(frames))
	for _, frame := range frames {
		lines = append(lines, fmt.Sprintf("Type: %s, Team: %s, Player: %s",
			frame.EventType,
			facts.ClubDisplay(frame.TeamInPossession),
			facts.PlayerDisplay(frame.PlayerInPossession),
		))
	}
	return lines
}

// BuildPrompt combines the style directive, goals, cards, score line and the
// possession lines into one prompt.
func (r *NarrativeRenderer) BuildPrompt(facts match.FactSet, lines []string) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString(r.styleDirective)
	_, _ = buf.WriteString("\n\nGoals:\n")
	if len(facts.Goals) == 0 {
		_, _ = buf.WriteString("- none\n")
	}
	for _, goal := range facts.Goals {
		_, _ = buf.WriteString("- " + goal.Team + ": " + goal.Scorer + " (" + formatMatchTime(goal.Time) + ")\n")
	}

	_, _ = buf.WriteString("\nCards:\n")
	if len(facts.Cards) == 0 {
		_, _ = buf.WriteString("- none\n")
	}
	for _, card := range facts.Cards {
		_, _ = buf.WriteString("- " + card.Team + ": " + card.Receiver + " (" + formatMatchTime(card.Time) + ")\n")
	}

	_, _ = buf.WriteString("\nScore: " + facts.ScoreLine() + "\n")
	_, _ = buf.WriteString("\nPassage of play:\n")
	for _, line := range lines {
		_, _ = buf.WriteString(line)
		_ = buf.WriteByte('\n')
	}

	return buf.String()
}

// Render issues the completion request and, when asked, the image request.
// An empty possession narrative returns ErrEmptyNarrative without calling
// any collaborator.
func (r *NarrativeRenderer) Render(ctx context.Context, facts match.FactSet, frames []match.PossessionFrame, opts digest.Options) (out digest.Narrative, err error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.NarrativeRenderer.Render",
		attribute.Int("frames.count", len(frames)),
		attribute.Bool("generate_image", opts.GenerateImage),
	)
	defer func() { endSpanWithError(span, err) }()

	lines := r.PossessionLines(facts, frames)
	if len(lines) == 0 {
		return digest.Narrative{}, ErrEmptyNarrative
	}
	if r.completer == nil {
		return digest.Narrative{}, fmt.Errorf("%w: text completer is not configured", ErrCompletion)
	}

	prompt, used := r.fitPrompt(ctx, facts, lines)
	text, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		r.metrics.RecordCompletion(completionKindText, completionResultErr)
		return digest.Narrative{}, classifyCompletionError(ctx, err)
	}
	r.metrics.RecordCompletion(completionKindText, completionResultOK)

	out = digest.Narrative{
		Digest:     text,
		Prompt:     prompt,
		FramesUsed: used,
	}
	if !opts.GenerateImage {
		return out, nil
	}

	imageURL, err := r.generateImage(ctx, text)
	if err != nil {
		if opts.ImageFailureFatal || ctx.Err() != nil {
			return digest.Narrative{}, err
		}
		r.logger.WarnContext(ctx, "image generation failed, returning digest without image", "error", err)
		return out, nil
	}
	out.ImageURL = imageURL
	return out, nil
}

func (r *NarrativeRenderer) generateImage(ctx context.Context, text string) (string, error) {
	if r.images == nil {
		return "", fmt.Errorf("%w: image generator is not configured", ErrCompletion)
	}
	url, err := r.images.GenerateImage(ctx, imagePrompt(text))
	if err != nil {
		r.metrics.RecordCompletion(completionKindImage, completionResultErr)
		return "", classifyCompletionError(ctx, err)
	}
	r.metrics.RecordCompletion(completionKindImage, completionResultOK)
	return url, nil
}

// fitPrompt drops trailing possession lines until the prompt fits the token
// budget. At least one line is always kept.
func (r *NarrativeRenderer) fitPrompt(ctx context.Context, facts match.FactSet, lines []string) (string, int) {
	prompt := r.BuildPrompt(facts, lines)
	if r.tokens == nil || r.maxPromptTokens <= 0 {
		return prompt, len(lines)
	}

	fits := func(n int) (string, bool, error) {
		candidate := r.BuildPrompt(facts, lines[:n])
		count, err := r.tokens.Count(candidate)
		if err != nil {
			return candidate, false, err
		}
		return candidate, count <= r.maxPromptTokens, nil
	}

	_, ok, err := fits(len(lines))
	if err != nil {
		r.logger.WarnContext(ctx, "token count failed, sending full prompt", "error", err)
		return prompt, len(lines)
	}
	if ok {
		return prompt, len(lines)
	}

	// Largest n in [1, len(lines)-1] whose prompt fits; 1 when none does.
	lo, hi := 1, len(lines)-1
	best := 1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		_, ok, err := fits(mid)
		if err != nil {
			break
		}
		if ok {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	r.logger.InfoContext(ctx, "possession narrative trimmed to token budget",
		"frames_total", len(lines),
		"frames_kept", best,
		"max_prompt_tokens", r.maxPromptTokens,
	)
	return r.BuildPrompt(facts, lines[:best]), best
}

func classifyCompletionError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, ErrCompletion) || errors.Is(err, ErrDependencyUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCompletion, err)
}

func imagePrompt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > maxImagePromptRunes {
		text = string(runes[:maxImagePromptRunes])
	}
	return imagePromptPrefix + text
}

func formatMatchTime(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
