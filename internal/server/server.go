package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webpuppet/webpuppet/internal/api"
	"github.com/webpuppet/webpuppet/internal/bridge"
	"github.com/webpuppet/webpuppet/internal/browser"
	"github.com/webpuppet/webpuppet/internal/config"
	"github.com/webpuppet/webpuppet/internal/mcpserver"
	"github.com/webpuppet/webpuppet/internal/serverstate"
)

// New constructs the HTTP handler for the API surface.
func New(cfg config.ServerConfig, facade *browser.Facade, preg *prometheus.Registry, version string) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	h := api.NewHandlers(facade, cfg.HTTPPort, cfg.WSPort)

	r.Get("/healthz", handleHealthz)
	r.Route("/api", func(ar chi.Router) {
		ar.Route("/docs", func(cr chi.Router) {
			cr.Get("/openapi.json", api.OpenAPIHandler())
			cr.Get("/*", api.SwaggerHandler())
		})
		ar.Group(func(g chi.Router) {
			if cfg.APIKey != "" {
				g.Use(api.APIKeyMiddleware(cfg.APIKey))
			}
			g.Route("/browser", func(br chi.Router) {
				br.Get("/status", h.Status)
				br.Post("/content", h.Content)
				br.Post("/html", h.HTML)
				br.Post("/selection", h.Selection)
				br.Post("/execute", h.Execute)
				br.Post("/click", h.Click)
				br.Post("/type", h.Type)
				br.Post("/navigate", h.Navigate)
				br.Post("/screenshot", h.Screenshot)
			})
			g.Get("/system", h.System)
			g.Get("/state", handleState(facade))
		})
	})

	r.Mount("/mcp", mcpserver.NewHandler(facade, version))
	r.Get("/state", StatePageHandler())

	if cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.HTTPPort) {
		r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	}

	return r
}

// NewWSHandler constructs the handler for the browser-facing websocket
// listener. It is served on its own port so the extension never needs API
// credentials beyond the client key.
func NewWSHandler(cfg config.ServerConfig, b *bridge.Bridge) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handleHealthz)
	r.Get(cfg.WSPath, bridge.WSHandler(b, cfg.ClientKey))
	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if serverstate.IsDraining() {
		status = "draining"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

func handleState(facade *browser.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := serverstate.Snapshot()
		resp := struct {
			Status   string        `json:"status"`
			Draining bool          `json:"draining"`
			Since    time.Time     `json:"since,omitzero"`
			Browser  bridge.Status `json:"browser"`
		}{Status: st.Status, Draining: st.Draining, Since: st.Since, Browser: facade.Status()}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
