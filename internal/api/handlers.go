package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
	"github.com/SmartInclusion/SmartInclusion/internal/store"
)

// IndexText is the liveness line served at the root path.
const IndexText = "Smart Inclusion USSD System Running"

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(IndexText))
}

// listHandler serves a GET-only JSON listing produced by load.
func listHandler[T any](w http.ResponseWriter, r *http.Request, name string, load func(context.Context) ([]T, error)) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := load(r.Context())
	if err != nil {
		slog.Error("Server.listHandler: failed to load records", "records", name, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load "+name))
		return
	}
	if items == nil {
		items = []T{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(items))
}

func (s *Server) farmersHandler(w http.ResponseWriter, r *http.Request) {
	listHandler(w, r, "farmers", s.st.GetFarmers)
}

func (s *Server) cropReportsHandler(w http.ResponseWriter, r *http.Request) {
	listHandler(w, r, "crop reports", s.st.GetCropReports)
}

func (s *Server) livestockReportsHandler(w http.ResponseWriter, r *http.Request) {
	listHandler(w, r, "livestock reports", s.st.GetLivestockReports)
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	if msgs, err := s.st.GetOutboxMessages(); err == nil {
		pending := 0
		for _, m := range msgs {
			if m.Status == store.OutboxStatusQueued || m.Status == store.OutboxStatusSending {
				pending++
			}
		}
		health["pending_messages"] = pending
	}

	farmers, err := s.st.GetFarmers(ctx)
	if err != nil {
		slog.Warn("Health check: failed to query farmers", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.NewAPIResponseBuilder().
			WithStatus(models.APIStatusError).
			WithMessage("Failed to query record store").
			WithResult(health).
			Build())
		return
	}
	health["registered_farmers"] = len(farmers)
	writeJSONResponse(w, http.StatusOK, models.Success(health))
}
