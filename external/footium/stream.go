package footium

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/platform/resilience"
	"github.com/riskibarqy/match-digest/internal/usecase"
)

const maxEventBytes = 4 << 20

var errFootiumTransient = crerr.New("footium transient failure")
var errStreamEnded = crerr.New("stream ended")

// Message is one dispatched server-sent event. A message with Err set is the
// last one on its subscription.
type Message struct {
	Event string
	ID    string
	Data  []byte
	Err   error
}

type StreamClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// StreamClient opens server-sent event subscriptions against the live API.
type StreamClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
	breaker    *resilience.CircuitBreaker
}

func NewStreamClient(cfg StreamClientConfig) *StreamClient {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultSSEBaseURL
	}

	return &StreamClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
		breaker:    resilience.NewFromConfig(cfg.CircuitBreaker),
	}
}

// Subscription is an open event stream. Messages is closed once the stream
// ends, fails or the subscription is closed.
type Subscription struct {
	url       string
	messages  chan Message
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) Messages() <-chan Message {
	return s.messages
}

func (s *Subscription) URL() string {
	return s.url
}

// Close cancels the underlying request and waits for the reader to exit.
// It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (c *StreamClient) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	subCtx, cancel := context.WithCancel(ctx)

	var resp *http.Response
	err := c.breaker.Execute(func() error {
		var connectErr error
		resp, connectErr = c.connect(subCtx, fullURL)
		return connectErr
	}, isFootiumCircuitFailure)
	if err != nil {
		cancel()
		if stderrors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.WarnContext(ctx, "footium stream circuit breaker rejected subscription", "url", fullURL, "state", c.breaker.State())
			return nil, fmt.Errorf("%w: live match stream is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: subscribe %s: %v", usecase.ErrUpstreamStream, fullURL, err)
	}

	sub := &Subscription{
		url:      fullURL,
		messages: make(chan Message),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.logger.DebugContext(ctx, "footium stream subscribed", "url", fullURL)

	go func() {
		defer close(sub.done)
		defer close(sub.messages)
		defer resp.Body.Close()
		readEvents(subCtx, resp.Body, sub.messages)
	}()

	return sub, nil
}

func (c *StreamClient) connect(ctx context.Context, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, crerr.Wrap(err, "build stream request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: open stream: %v", errFootiumTransient, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	if isRetryableStatus(resp.StatusCode) {
		return nil, fmt.Errorf("%w: stream status=%d body=%s", errFootiumTransient, resp.StatusCode, abbreviateBody(raw))
	}
	return nil, fmt.Errorf("stream status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
}

// readEvents parses the text/event-stream framing: data lines are joined
// with newlines and dispatched on a blank line; comments and unknown fields
// are skipped. An incomplete trailing event is discarded.
func readEvents(ctx context.Context, body io.Reader, out chan<- Message) {
	send := func(msg Message) bool {
		select {
		case out <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)

	var (
		data      strings.Builder
		hasData   bool
		eventName string
		eventID   string
	)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if hasData {
				msg := Message{Event: eventName, ID: eventID, Data: []byte(data.String())}
				if !send(msg) {
					return
				}
			}
			data.Reset()
			hasData = false
			eventName = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			eventName = value
		case "id":
			eventID = value
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		send(Message{Err: fmt.Errorf("%w: read stream: %v", errFootiumTransient, err)})
		return
	}
	send(Message{Err: errStreamEnded})
}

func isFootiumCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errFootiumTransient)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
