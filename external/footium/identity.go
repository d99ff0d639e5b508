package footium

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/match-digest/internal/domain/match"
	"github.com/riskibarqy/match-digest/internal/platform/cache"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/platform/resilience"
	"github.com/riskibarqy/match-digest/internal/usecase"
	"github.com/valyala/fasthttp"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

const (
	playerNameQuery = `query PlayerName($id: String!) {
  players(where: { id: { equals: $id } }) {
    fullName
  }
}`
	clubNameQuery = `query ClubName($id: Int!) {
  clubs(where: { id: { equals: $id } }) {
    name
  }
}`

	playerCachePrefix = "player:"
	clubCachePrefix   = "club:"
)

var errGraphQLTransient = crerr.New("footium graphql transient failure")

type IdentityClientConfig struct {
	HTTPClient      *fasthttp.Client
	Endpoint        string
	Timeout         time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
	Logger          *logging.Logger
	CircuitBreaker  resilience.CircuitBreakerConfig
}

// graphQLOperation is a parsed, validated query document.
type graphQLOperation struct {
	name     string
	query    string
	variable string
	numeric  bool
}

type lookupResult struct {
	name  string
	found bool
}

// IdentityClient resolves player and club names through the GraphQL API.
// Results, including not-found answers, are cached process-wide.
type IdentityClient struct {
	httpClient *fasthttp.Client
	endpoint   string
	timeout    time.Duration
	logger     *logging.Logger
	breaker    *resilience.CircuitBreaker
	cache      *cache.Store[lookupResult]
	player     graphQLOperation
	club       graphQLOperation
}

func NewIdentityClient(cfg IdentityClientConfig) (*IdentityClient, error) {
	player, err := parseOperation(playerNameQuery)
	if err != nil {
		return nil, fmt.Errorf("parse player name query: %w", err)
	}
	club, err := parseOperation(clubNameQuery)
	if err != nil {
		return nil, fmt.Errorf("parse club name query: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &fasthttp.Client{Name: "match-digest"}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultGraphQLURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &IdentityClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		timeout:    timeout,
		logger:     logger,
		breaker:    resilience.NewFromConfig(cfg.CircuitBreaker),
		cache:      cache.NewStore[lookupResult](cfg.CacheTTL, cfg.CacheMaxEntries),
		player:     player,
		club:       club,
	}, nil
}

var _ match.IdentityLookup = (*IdentityClient)(nil)

func (c *IdentityClient) PlayerName(ctx context.Context, playerID string) (string, bool, error) {
	return c.lookup(ctx, c.player, playerCachePrefix, playerID, "fullName")
}

func (c *IdentityClient) ClubName(ctx context.Context, clubID string) (string, bool, error) {
	return c.lookup(ctx, c.club, clubCachePrefix, clubID, "name")
}

func (c *IdentityClient) lookup(ctx context.Context, op graphQLOperation, prefix, id, field string) (string, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false, nil
	}

	var variable any = id
	if op.numeric {
		numericID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return "", false, nil
		}
		variable = numericID
	}

	result, err := c.cache.GetOrLoad(ctx, prefix+id, func(ctx context.Context) (lookupResult, error) {
		return c.execute(ctx, op, variable, field)
	})
	if err != nil {
		return "", false, err
	}
	return result.name, result.found, nil
}

func (c *IdentityClient) execute(ctx context.Context, op graphQLOperation, variable any, field string) (lookupResult, error) {
	var result lookupResult
	err := c.breaker.Execute(func() error {
		var execErr error
		result, execErr = c.post(ctx, op, variable, field)
		return execErr
	}, isGraphQLCircuitFailure)
	if err == nil {
		return result, nil
	}

	if stderrors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.WarnContext(ctx, "footium graphql circuit breaker rejected request",
			"operation", op.name,
			"state", c.breaker.State(),
		)
		return lookupResult{}, fmt.Errorf("%w: %w", usecase.ErrIdentityLookup, usecase.ErrDependencyUnavailable)
	}
	return lookupResult{}, fmt.Errorf("%w: %s: %v", usecase.ErrIdentityLookup, op.name, err)
}

type graphQLRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   map[string][]map[string]any `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *IdentityClient) post(ctx context.Context, op graphQLOperation, variable any, field string) (lookupResult, error) {
	body, err := sonic.Marshal(graphQLRequest{
		OperationName: op.name,
		Query:         op.query,
		Variables:     map[string]any{op.variable: variable},
	})
	if err != nil {
		return lookupResult{}, crerr.Wrap(err, "encode graphql request")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := ctx.Err(); err != nil {
		return lookupResult{}, err
	}
	if err := c.httpClient.DoDeadline(req, resp, deadline); err != nil {
		return lookupResult{}, fmt.Errorf("%w: post graphql: %v", errGraphQLTransient, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		if isRetryableStatus(status) {
			return lookupResult{}, fmt.Errorf("%w: graphql status=%d body=%s", errGraphQLTransient, status, abbreviateBody(resp.Body()))
		}
		return lookupResult{}, fmt.Errorf("graphql status=%d body=%s", status, abbreviateBody(resp.Body()))
	}

	var decoded graphQLResponse
	if err := sonic.Unmarshal(resp.Body(), &decoded); err != nil {
		return lookupResult{}, crerr.Wrap(err, "decode graphql response")
	}
	if len(decoded.Errors) > 0 {
		return lookupResult{}, fmt.Errorf("graphql error: %s", decoded.Errors[0].Message)
	}

	for _, rows := range decoded.Data {
		if len(rows) == 0 {
			return lookupResult{}, nil
		}
		name, _ := rows[0][field].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			return lookupResult{}, nil
		}
		return lookupResult{name: name, found: true}, nil
	}
	return lookupResult{}, nil
}

// parseOperation validates a single-operation query document with one
// variable and records how that variable is typed.
func parseOperation(query string) (graphQLOperation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "identity", Input: query})
	if err != nil {
		return graphQLOperation{}, err
	}
	if len(doc.Operations) != 1 {
		return graphQLOperation{}, fmt.Errorf("expected one operation, got %d", len(doc.Operations))
	}
	op := doc.Operations[0]
	if op.Operation != ast.Query || op.Name == "" {
		return graphQLOperation{}, fmt.Errorf("expected a named query operation")
	}
	if len(op.VariableDefinitions) != 1 {
		return graphQLOperation{}, fmt.Errorf("operation %s must declare exactly one variable", op.Name)
	}

	def := op.VariableDefinitions[0]
	return graphQLOperation{
		name:     op.Name,
		query:    query,
		variable: def.Variable,
		numeric:  def.Type != nil && def.Type.Name() == "Int",
	}, nil
}

func isGraphQLCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errGraphQLTransient)
}
