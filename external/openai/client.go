package openai

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/match-digest/internal/domain/digest"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/platform/resilience"
	"github.com/riskibarqy/match-digest/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultChatModel  = "gpt-4o-mini"
	DefaultImageModel = "dall-e-3"
	DefaultImageSize  = "1024x1024"
	maxResponseBytes  = 4 << 20
)

var errOpenAITransient = crerr.New("openai transient failure")
var bearerTokenRegex = regexp.MustCompile(`(?i)bearer\s+[^\s"']+`)

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	ChatModel      string
	ImageModel     string
	ImageSize      string
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to an OpenAI-compatible API. It answers prompts with a single
// system message and optionally renders images.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	chatModel    string
	imageModel   string
	imageSize    string
	maxRetries   int
	retryBackoff time.Duration
	logger       *logging.Logger
	breaker      *resilience.CircuitBreaker
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 60 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = time.Second
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		chatModel:    firstNonEmpty(cfg.ChatModel, DefaultChatModel),
		imageModel:   firstNonEmpty(cfg.ImageModel, DefaultImageModel),
		imageSize:    firstNonEmpty(cfg.ImageSize, DefaultImageSize),
		maxRetries:   max(cfg.MaxRetries, 0),
		retryBackoff: retryBackoff,
		logger:       logger,
		breaker:      resilience.NewFromConfig(cfg.CircuitBreaker),
	}
}

var (
	_ digest.TextCompleter  = (*Client)(nil)
	_ digest.ImageGenerator = (*Client)(nil)
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type imageGenerationRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type imageGenerationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends prompt as the only system message and returns the first
// choice verbatim.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var out chatCompletionResponse
	err := c.doJSON(ctx, "/chat/completions", chatCompletionRequest{
		Model:    c.chatModel,
		Messages: []chatMessage{{Role: "system", Content: prompt}},
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("%w: completion returned no content", usecase.ErrCompletion)
	}

	c.logger.DebugContext(ctx, "openai completion finished",
		"model", c.chatModel,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"finish_reason", out.Choices[0].FinishReason,
	)
	return *out.Choices[0].Message.Content, nil
}

func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var out imageGenerationResponse
	err := c.doJSON(ctx, "/images/generations", imageGenerationRequest{
		Model:  c.imageModel,
		Prompt: prompt,
		N:      1,
		Size:   c.imageSize,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Data) == 0 || strings.TrimSpace(out.Data[0].URL) == "" {
		return "", fmt.Errorf("%w: image generation returned no url", usecase.ErrCompletion)
	}
	return out.Data[0].URL, nil
}

func (c *Client) doJSON(ctx context.Context, path string, payload, target any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", usecase.ErrCompletion, err)
	}

	var raw []byte
	err = c.breaker.Execute(func() error {
		var reqErr error
		raw, reqErr = c.executeRequest(ctx, c.baseURL+path, body)
		return reqErr
	}, isOpenAICircuitFailure)
	if err != nil {
		if stderrors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.WarnContext(ctx, "openai circuit breaker rejected request", "path", path, "state", c.breaker.State())
			return fmt.Errorf("%w: completion provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: %v", usecase.ErrCompletion, path, err)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", usecase.ErrCompletion, path, err)
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = fmt.Errorf("%w: send request: %s", errOpenAITransient, sanitizeSensitiveText(err.Error(), c.apiKey))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response body: %v", errOpenAITransient, readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case isRetryableStatus(resp.StatusCode):
				lastErr = fmt.Errorf("%w: provider status=%d message=%s", errOpenAITransient, resp.StatusCode, apiErrorMessage(raw))
			default:
				return nil, fmt.Errorf("provider status=%d message=%s", resp.StatusCode, apiErrorMessage(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		c.logger.WarnContext(ctx, "retrying openai request", "attempt", attempt+1, "error", lastErr)
		timer := time.NewTimer(time.Duration(attempt+1) * c.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func apiErrorMessage(raw []byte) string {
	var parsed apiErrorResponse
	if err := sonic.Unmarshal(raw, &parsed); err == nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return parsed.Error.Message
	}
	return abbreviateBody(raw)
}

func isOpenAICircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errOpenAITransient)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

func sanitizeSensitiveText(text, apiKey string) string {
	if apiKey != "" {
		text = strings.ReplaceAll(text, apiKey, "***")
	}
	return bearerTokenRegex.ReplaceAllString(text, "Bearer ***")
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
