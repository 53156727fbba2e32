package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/adtrack-console/internal/config"
	"github.com/kirillkom/adtrack-console/internal/core/ports"
	"github.com/kirillkom/adtrack-console/internal/observability/metrics"
)

const serviceName = "adtrack-api"

type Router struct {
	cfg      config.Config
	batch    ports.BatchService
	catalog  ports.ModelCatalog
	settings ports.SettingsService
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	batch ports.BatchService,
	catalog ports.ModelCatalog,
	settings ports.SettingsService,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		batch:    batch,
		catalog:  catalog,
		settings: settings,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/models", rt.listModels)
	mux.HandleFunc("/v1/batches", rt.submitBatch)
	mux.HandleFunc("/v1/batch", rt.batchState)
	mux.HandleFunc("/v1/batch/results/", rt.getResult)
	mux.HandleFunc("/v1/batch/events", rt.streamEvents)
	mux.HandleFunc("/v1/batch/export.xlsx", rt.exportReport)
	mux.HandleFunc("/v1/settings", rt.settingsHandler)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	models := rt.catalog.Models()
	if len(models) == 0 {
		models = rt.catalog.Load(r.Context())
	}
	resp := map[string]any{"models": models}
	if def, ok := rt.catalog.Default(); ok {
		resp["default"] = def.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
