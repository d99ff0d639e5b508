package app

import (
	"fmt"
	"net/http"

	"github.com/riskibarqy/match-digest/external/footium"
	"github.com/riskibarqy/match-digest/external/openai"
	"github.com/riskibarqy/match-digest/internal/config"
	"github.com/riskibarqy/match-digest/internal/domain/digest"
	"github.com/riskibarqy/match-digest/internal/interfaces/httpapi"
	"github.com/riskibarqy/match-digest/internal/observability"
	idgen "github.com/riskibarqy/match-digest/internal/platform/id"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/platform/tokens"
	"github.com/riskibarqy/match-digest/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func NewHTTPServer(cfg config.Config, logger *logging.Logger) (*http.Server, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	var (
		digestMetrics  = usecase.NopMetrics()
		httpMetrics    httpapi.HTTPMetrics
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		metrics := observability.NewMetrics()
		digestMetrics = metrics
		httpMetrics = metrics
		metricsHandler = metrics.Handler()
	}

	// No client timeout: phase deadlines bound each subscription.
	stream := footium.NewStreamClient(footium.StreamClientConfig{
		HTTPClient:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		BaseURL:        cfg.FootiumSSEBaseURL,
		Logger:         logger,
		CircuitBreaker: cfg.FootiumStreamCircuit,
	})
	identity, err := footium.NewIdentityClient(footium.IdentityClientConfig{
		Endpoint:        cfg.FootiumGraphQLURL,
		Timeout:         cfg.FootiumGraphQLTimeout,
		CacheTTL:        cfg.IdentityCacheTTL,
		CacheMaxEntries: cfg.IdentityCacheMaxEntries,
		Logger:          logger,
		CircuitBreaker:  cfg.FootiumGraphQLCircuit,
	})
	if err != nil {
		return nil, fmt.Errorf("build identity client: %w", err)
	}

	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY is empty, completion requests will be rejected upstream")
	}
	completions := openai.NewClient(openai.ClientConfig{
		BaseURL:        cfg.OpenAIBaseURL,
		APIKey:         cfg.OpenAIAPIKey,
		ChatModel:      cfg.OpenAIChatModel,
		ImageModel:     cfg.OpenAIImageModel,
		ImageSize:      cfg.OpenAIImageSize,
		Timeout:        cfg.OpenAITimeout,
		MaxRetries:     cfg.OpenAIMaxRetries,
		Logger:         logger,
		CircuitBreaker: cfg.OpenAICircuit,
	})

	digestSvc := usecase.NewDigestService(usecase.DigestServiceConfig{
		Source:      footium.NewClient(stream, logger),
		Accumulator: usecase.NewFactAccumulator(identity, cfg.IdentityLookupWorkers, logger, digestMetrics),
		Renderer: usecase.NewNarrativeRenderer(usecase.NarrativeRendererConfig{
			Completer:       completions,
			Images:          completions,
			Tokens:          tokens.NewCounter(cfg.OpenAIChatModel),
			MaxPromptTokens: cfg.DigestMaxPromptTokens,
			StyleDirective:  cfg.DigestStyleDirective,
			Logger:          logger,
			Metrics:         digestMetrics,
		}),
		Options: digest.Options{
			ResolveNames:      cfg.DigestResolveNames,
			GenerateImage:     cfg.DigestGenerateImage,
			ImageFailureFatal: cfg.DigestImageFailureFatal,
		},
		PartialTimeout: cfg.DigestPartialTimeout,
		FramesTimeout:  cfg.DigestFramesTimeout,
		Logger:         logger,
		Metrics:        digestMetrics,
	})

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:            httpapi.NewHandler(digestSvc, logger),
		Logger:             logger,
		IDs:                idgen.NewUUIDGenerator(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:            httpMetrics,
		MetricsHandler:     metricsHandler,
	})

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}, nil
}
