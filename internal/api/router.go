package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/technosupport/ts-dispatch/internal/dispatch"
	"github.com/technosupport/ts-dispatch/internal/metrics"
	"github.com/technosupport/ts-dispatch/internal/stream"
)

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestLogger generates a req_id and logs trace info
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		start := time.Now()

		w.Header().Set("X-Request-ID", reqID)
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		log.Printf("[REQ:%s] %s %s -> %d (%s)", reqID, r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

// Handler exposes the console's read-only local surface: liveness, the
// UI read model, and Prometheus metrics. Mutations stay on the typed
// orchestrator API; this surface is for the UI shell and for operators
// poking at a console with curl.
type Handler struct {
	Orch *dispatch.Orchestrator
}

func NewRouter(orch *dispatch.Orchestrator) http.Handler {
	h := &Handler{Orch: orch}

	r := chi.NewRouter()
	r.Use(RequestLogger)
	r.Get("/healthz", h.Healthz)
	r.Get("/state", h.State)
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	rm := h.Orch.ReadModel()
	status := http.StatusOK
	if rm.ConnectionStatus != stream.StatusConnected {
		// Degraded, not dead: the console still serves its read model
		// while the push channel reconnects.
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"status": "ok",
		"stream": string(rm.ConnectionStatus),
	})
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orch.ReadModel())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] API: encode response: %v", err)
	}
}
