package digest

import "context"

// TextCompleter answers a single-turn prompt with literal text.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator returns the URL of an image generated for prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Options selects which optional steps a digest request runs.
type Options struct {
	ResolveNames      bool
	GenerateImage     bool
	ImageFailureFatal bool
}

// Narrative is the renderer output for one fixture.
type Narrative struct {
	Digest     string
	ImageURL   string
	Prompt     string
	FramesUsed int
}

// Stage is a state of the per-request digest workflow.
type Stage string

const (
	StageAwaitingPartial Stage = "awaiting_partial"
	StageAwaitingFrames  Stage = "awaiting_frames"
	StageRendering       Stage = "rendering"
	StageResponded       Stage = "responded"
	StageFailed          Stage = "failed"
)

func (s Stage) Terminal() bool {
	return s == StageResponded || s == StageFailed
}
