package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/match-digest/internal/domain/match"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/usecase"
)

type stubDigests struct {
	mu     sync.Mutex
	calls  []usecase.FixtureRequest
	result match.MatchDigest
	err    error
	fn     func(ctx context.Context) (match.MatchDigest, error)
}

func (s *stubDigests) Generate(ctx context.Context, req usecase.FixtureRequest) (match.MatchDigest, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx)
	}
	return s.result, s.err
}

func (s *stubDigests) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordedHTTPMetric struct {
	route  string
	status int
}

type fakeHTTPMetrics struct {
	mu       sync.Mutex
	observed []recordedHTTPMetric
}

func (m *fakeHTTPMetrics) ObserveHTTPRequest(route, _ string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, recordedHTTPMetric{route: route, status: status})
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

func newTestRouter(digests DigestGenerator, metrics *fakeHTTPMetrics) http.Handler {
	logger := logging.NewNop()
	cfg := RouterConfig{
		Handler:            NewHandler(digests, logger),
		Logger:             logger,
		IDs:                fixedIDs{id: "req-1"},
		CORSAllowedOrigins: []string{"*"},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	}
	if metrics != nil {
		cfg.Metrics = metrics
	}
	return NewRouter(cfg)
}

func sampleDigest() match.MatchDigest {
	return match.MatchDigest{
		FixtureID: "123",
		Digest:    "Alice scores early.",
		Goals: []match.GoalFact{
			{Team: "Home FC", ClubID: "c1", Scorer: "Alice", ScorerID: "p1", Time: 10},
		},
		HomeGoals:    1,
		HomeTeamName: "Home FC",
		AwayTeamName: "Away FC",
		HomeTeamWins: 4,
		AwayTeamWins: 2,
	}
}

func TestGetMatchDigest_Success(t *testing.T) {
	digests := &stubDigests{result: sampleDigest()}
	router := newTestRouter(digests, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sse?fixtureId=123", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(requestIDHeader); got != "req-1" {
		t.Fatalf("unexpected request id header: %q", got)
	}

	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	if body["digest"] != "Alice scores early." {
		t.Fatalf("unexpected digest: %v", body["digest"])
	}
	if body["homeTeamGoals"] != float64(1) || body["awayTeamGoals"] != float64(0) {
		t.Fatalf("unexpected score: %v-%v", body["homeTeamGoals"], body["awayTeamGoals"])
	}
	if _, ok := body["imageUrl"]; ok {
		t.Fatalf("imageUrl should be omitted when empty")
	}
	goals, ok := body["goals"].([]any)
	if !ok || len(goals) != 1 {
		t.Fatalf("unexpected goals: %v", body["goals"])
	}
	goal := goals[0].(map[string]any)
	if goal["team"] != "Home FC" || goal["goal_scorer"] != "Alice" || goal["goal_time"] != float64(10) {
		t.Fatalf("unexpected goal: %v", goal)
	}
	if cards, ok := body["cards"].([]any); !ok || len(cards) != 0 {
		t.Fatalf("expected empty cards array, got %v", body["cards"])
	}
	if digests.calls[0].FixtureID != "123" {
		t.Fatalf("unexpected fixture id: %q", digests.calls[0].FixtureID)
	}
}

func TestGetMatchDigest_MissingFixtureID(t *testing.T) {
	for _, target := range []string{"/api/sse", "/api/sse?fixtureId=", "/api/sse?fixtureId=%20"} {
		digests := &stubDigests{}
		router := newTestRouter(digests, nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Match ID is required."}` {
			t.Fatalf("%s: unexpected body: %s", target, got)
		}
		if digests.callCount() != 0 {
			t.Fatalf("%s: workflow must not run without a fixture id", target)
		}
	}
}

func TestGetMatchDigest_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "malformed", err: fmt.Errorf("%w: bad id", usecase.ErrInvalidInput), want: http.StatusBadRequest},
		{name: "completion", err: fmt.Errorf("%w: 500", usecase.ErrCompletion), want: http.StatusInternalServerError},
		{name: "stream", err: fmt.Errorf("%w: eof", usecase.ErrUpstreamStream), want: http.StatusBadGateway},
		{name: "open circuit", err: fmt.Errorf("%w: open", usecase.ErrDependencyUnavailable), want: http.StatusServiceUnavailable},
		{name: "timeout", err: usecase.ErrNarrativeTimeout, want: http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubDigests{err: tt.err}, nil)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sse?fixtureId=1", nil))

			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
			var body errorBody
			if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal response body: %v", err)
			}
			if body.Error == "" || body.Details == "" {
				t.Fatalf("expected error and details, got %+v", body)
			}
		})
	}
}

func TestGetMatchDigest_ClientDisconnectWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	digests := &stubDigests{fn: func(ctx context.Context) (match.MatchDigest, error) {
		cancel()
		<-ctx.Done()
		return match.MatchDigest{}, ctx.Err()
	}}
	handler := NewHandler(digests, logging.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sse?fixtureId=1", nil).WithContext(ctx)
	handler.GetMatchDigest(rec, req)

	if rec.Body.Len() != 0 {
		t.Fatalf("expected no body after client disconnect, got %s", rec.Body.String())
	}
}

func TestRouter_RecoversPanics(t *testing.T) {
	digests := &stubDigests{fn: func(context.Context) (match.MatchDigest, error) {
		panic("boom")
	}}
	router := newTestRouter(digests, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sse?fixtureId=1", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Internal Server Error"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestRouter_SystemRoutes(t *testing.T) {
	metrics := &fakeHTTPMetrics{}
	router := newTestRouter(&stubDigests{}, metrics)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != rootMessage {
		t.Fatalf("unexpected root response: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("unexpected healthz response: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "# metrics") {
		t.Fatalf("unexpected metrics response: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", rec.Code)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.observed) != 4 {
		t.Fatalf("unexpected observation count: got=%d want=4", len(metrics.observed))
	}
	last := metrics.observed[3]
	if last.route != "unmatched" || last.status != http.StatusNotFound {
		t.Fatalf("unexpected last observation: %+v", last)
	}
}

func TestRequestID_PropagatesCallerHeader(t *testing.T) {
	var seen string
	handler := RequestID(fixedIDs{id: "generated"}, logging.NewNop(), http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sse?fixtureId=1", nil)
	req.Header.Set(requestIDHeader, "caller-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "caller-42" || rec.Header().Get(requestIDHeader) != "caller-42" {
		t.Fatalf("expected caller request id, got ctx=%q header=%q", seen, rec.Header().Get(requestIDHeader))
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(fixedIDs{id: "generated"}, logging.NewNop(), http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != "generated" {
		t.Fatalf("expected generated request id, got %q", seen)
	}
}

func TestGetMatchDigest_WorkflowErrorIsLoggedNotPanicked(t *testing.T) {
	router := newTestRouter(&stubDigests{err: errors.New("unexpected")}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sse?fixtureId=1", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Internal Server Error"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}
