package httpapi

import "net/http"

const digestRoutePath = "/api/sse"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metricsHandler http.Handler) {
	mux.HandleFunc("GET /{$}", handler.Root)
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}

func registerDigestRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET "+digestRoutePath, handler.GetMatchDigest)
}
