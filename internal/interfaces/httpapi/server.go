package httpapi

import (
	"net/http"

	"github.com/riskibarqy/match-digest/internal/platform/id"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
)

type RouterConfig struct {
	Handler            *Handler
	Logger             *logging.Logger
	IDs                id.Generator
	CORSAllowedOrigins []string
	// Metrics and MetricsHandler are optional; /metrics is only mounted
	// when MetricsHandler is set.
	Metrics        HTTPMetrics
	MetricsHandler http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	ids := cfg.IDs
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}

	mux := http.NewServeMux()
	registerSystemRoutes(mux, cfg.Handler, cfg.MetricsHandler)
	registerDigestRoutes(mux, cfg.Handler)

	return RequestTracing(
		RequestID(ids, logger,
			RequestLogging(logger, cfg.Metrics,
				CORS(cfg.CORSAllowedOrigins, recoverPanic(logger, mux)))))
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		guard := newResponseGuard(w)
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "panic recovered", "panic", rec, "path", r.URL.Path)
				writeInternalError(r.Context(), guard)
			}
		}()
		next.ServeHTTP(guard, r)
	})
}
