package footium

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/riskibarqy/match-digest/internal/domain/match"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/usecase"
)

const (
	DefaultSSEBaseURL    = "https://live.api.footium.club/api/sse"
	DefaultGraphQLURL    = "https://live.api.footium.club/api/graphql"
	partialMatchPathTmpl = "partial_match/%s"
	matchFramesPathTmpl  = "match_frames/%s"
)

// Client adapts the live match streams to match.Source. Every call opens its
// own subscription and closes it after the first qualifying message.
type Client struct {
	stream *StreamClient
	logger *logging.Logger
}

func NewClient(stream *StreamClient, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{stream: stream, logger: logger}
}

var _ match.Source = (*Client)(nil)

func (c *Client) PartialMatch(ctx context.Context, fixtureID string) (match.PartialMatch, error) {
	path := fmt.Sprintf(partialMatchPathTmpl, url.PathEscape(strings.TrimSpace(fixtureID)))
	return awaitFirst(ctx, c, path, func(raw []byte) (match.PartialMatch, bool, error) {
		return decodePartialMatch(fixtureID, raw)
	})
}

func (c *Client) MatchFrames(ctx context.Context, fixtureID string) ([]match.PossessionFrame, error) {
	path := fmt.Sprintf(matchFramesPathTmpl, url.PathEscape(strings.TrimSpace(fixtureID)))
	return awaitFirst(ctx, c, path, decodeFrames)
}

// awaitFirst consumes a subscription until decode reports a qualifying
// payload. Empty payloads are skipped silently, undecodable ones with a
// warning.
func awaitFirst[T any](ctx context.Context, c *Client, path string, decode func([]byte) (T, bool, error)) (T, error) {
	var zero T

	sub, err := c.stream.Subscribe(ctx, path)
	if err != nil {
		return zero, err
	}
	defer sub.Close()

	skipped := 0
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return zero, ctxErr
				}
				return zero, fmt.Errorf("%w: %s closed without a usable message", usecase.ErrUpstreamStream, sub.URL())
			}
			if msg.Err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return zero, ctxErr
				}
				if stderrors.Is(msg.Err, errStreamEnded) {
					return zero, fmt.Errorf("%w: %s ended after %d skipped messages", usecase.ErrUpstreamStream, sub.URL(), skipped)
				}
				return zero, fmt.Errorf("%w: %s: %v", usecase.ErrUpstreamStream, sub.URL(), msg.Err)
			}

			value, ok, decodeErr := decode(msg.Data)
			if decodeErr != nil {
				skipped++
				c.logger.WarnContext(ctx, "skip undecodable stream message",
					"url", sub.URL(),
					"event_id", msg.ID,
					"error", decodeErr,
				)
				continue
			}
			if !ok {
				skipped++
				continue
			}
			c.logger.DebugContext(ctx, "stream message accepted", "url", sub.URL(), "skipped", skipped)
			return value, nil
		}
	}
}
