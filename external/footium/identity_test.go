package footium

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/platform/resilience"
	"github.com/riskibarqy/match-digest/internal/usecase"
)

type capturedGraphQL struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

func newIdentityTestClient(t *testing.T, endpoint string, breaker resilience.CircuitBreakerConfig) *IdentityClient {
	t.Helper()
	client, err := NewIdentityClient(IdentityClientConfig{
		Endpoint:       endpoint,
		Timeout:        2 * time.Second,
		CacheTTL:       time.Minute,
		Logger:         logging.NewNop(),
		CircuitBreaker: breaker,
	})
	if err != nil {
		t.Fatalf("NewIdentityClient error: %v", err)
	}
	return client
}

func TestIdentityClient_PlayerName_CachesResult(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var captured atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		var req capturedGraphQL
		if err := testJSON.Unmarshal(raw, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		captured.Store(req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"players":[{"fullName":"Alice Example"}]}}`))
	}))
	defer server.Close()

	client := newIdentityTestClient(t, server.URL, resilience.CircuitBreakerConfig{})
	for i := 0; i < 2; i++ {
		name, found, err := client.PlayerName(context.Background(), "p1")
		if err != nil {
			t.Fatalf("PlayerName error: %v", err)
		}
		if !found || name != "Alice Example" {
			t.Fatalf("unexpected lookup: name=%q found=%v", name, found)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one upstream call, got=%d", got)
	}
	req, _ := captured.Load().(capturedGraphQL)
	if req.OperationName != "PlayerName" {
		t.Fatalf("unexpected operation name: %q", req.OperationName)
	}
	if req.Variables["id"] != "p1" {
		t.Fatalf("unexpected variables: %v", req.Variables)
	}
}

func TestIdentityClient_ClubName_NullMeansUnresolved(t *testing.T) {
	t.Parallel()

	var captured atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req capturedGraphQL
		_ = testJSON.Unmarshal(raw, &req)
		captured.Store(req)
		_, _ = w.Write([]byte(`{"data":{"clubs":[]}}`))
	}))
	defer server.Close()

	client := newIdentityTestClient(t, server.URL, resilience.CircuitBreakerConfig{})
	name, found, err := client.ClubName(context.Background(), "42")
	if err != nil {
		t.Fatalf("ClubName error: %v", err)
	}
	if found || name != "" {
		t.Fatalf("expected unresolved club, got name=%q found=%v", name, found)
	}

	req, _ := captured.Load().(capturedGraphQL)
	if id, ok := req.Variables["id"].(float64); !ok || id != 42 {
		t.Fatalf("expected numeric club id variable, got %v", req.Variables["id"])
	}
}

func TestIdentityClient_ClubName_NonNumericIDSkipsUpstream(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":{"clubs":[{"name":"x"}]}}`))
	}))
	defer server.Close()

	client := newIdentityTestClient(t, server.URL, resilience.CircuitBreakerConfig{})
	_, found, err := client.ClubName(context.Background(), "c1")
	if err != nil || found {
		t.Fatalf("expected unresolved without error, found=%v err=%v", found, err)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no upstream call, got=%d", got)
	}
}

func TestIdentityClient_GraphQLErrorsAreLookupFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
	}))
	defer server.Close()

	client := newIdentityTestClient(t, server.URL, resilience.CircuitBreakerConfig{})
	_, _, err := client.PlayerName(context.Background(), "p9")
	if !errors.Is(err, usecase.ErrIdentityLookup) {
		t.Fatalf("expected identity lookup error, got %v", err)
	}
}

func TestIdentityClient_OpenCircuitSkipsUpstream(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newIdentityTestClient(t, server.URL, resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		HalfOpenMaxReq:   1,
	})

	if _, _, err := client.PlayerName(context.Background(), "p1"); !errors.Is(err, usecase.ErrIdentityLookup) {
		t.Fatalf("expected identity lookup error, got %v", err)
	}
	_, _, err := client.PlayerName(context.Background(), "p2")
	if !errors.Is(err, usecase.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one upstream call, got=%d", got)
	}
}

func TestParseOperation_RejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	cases := []string{
		`query { players { fullName } }`,
		`query Broken($id: String!) { players(`,
		`mutation Rename($id: String!) { rename(id: $id) }`,
	}
	for _, query := range cases {
		if _, err := parseOperation(query); err == nil {
			t.Fatalf("expected parse error for %q", query)
		}
	}

	op, err := parseOperation(clubNameQuery)
	if err != nil {
		t.Fatalf("parse club query: %v", err)
	}
	if op.name != "ClubName" || op.variable != "id" || !op.numeric {
		t.Fatalf("unexpected operation: %+v", op)
	}
}
