package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/SmartInclusion/SmartInclusion/internal/dashboard"
	"github.com/SmartInclusion/SmartInclusion/internal/models"
)

// DashboardSentRedirect is where a form broadcast lands afterwards.
const DashboardSentRedirect = "/dashboard?sent=true"

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	farmers, err := s.st.GetFarmers(ctx)
	if err != nil {
		s.dashboardFailed(w, "farmers", err)
		return
	}
	crops, err := s.st.GetCropReports(ctx)
	if err != nil {
		s.dashboardFailed(w, "crop reports", err)
		return
	}
	livestock, err := s.st.GetLivestockReports(ctx)
	if err != nil {
		s.dashboardFailed(w, "livestock reports", err)
		return
	}

	view := dashboard.View{
		Farmers:   farmers,
		Crops:     crops,
		Livestock: livestock,
		Sent:      sentFlag(r.URL.Query().Get("sent")),
	}
	var buf bytes.Buffer
	if err := dashboard.Render(&buf, view); err != nil {
		slog.Error("Server.dashboardHandler: render failed", "error", err)
		http.Error(w, "Failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Server.dashboardHandler: failed to write response", "error", err)
	}
}

func (s *Server) dashboardFailed(w http.ResponseWriter, what string, err error) {
	slog.Error("Server.dashboardHandler: failed to load records", "records", what, "error", err)
	http.Error(w, "Failed to load "+what, http.StatusInternalServerError)
}

// sentFlag treats any value other than empty, "false" or "0" as set.
func sentFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0":
		return false
	}
	return true
}

// broadcastHandler accepts the dashboard form and redirects back to the
// dashboard. JSON requests get a JSON acknowledgement instead.
func (s *Server) broadcastHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	jsonRequest := isJSON(r)
	var req models.BroadcastRequest
	if jsonRequest {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.broadcastHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			slog.Warn("Server.broadcastHandler: failed to parse form", "error", err)
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}
		req.Message = r.FormValue("message")
	}
	req.Message = strings.TrimSpace(req.Message)

	ack, err := s.broadcaster.Broadcast(r.Context(), req.Message)
	if err != nil {
		status, text := http.StatusInternalServerError, "Failed to queue broadcast"
		if errors.Is(err, models.ErrEmptyMessage) || errors.Is(err, models.ErrMessageTooLong) {
			status, text = http.StatusBadRequest, err.Error()
			slog.Warn("Server.broadcastHandler: rejected message", "error", err)
		} else {
			slog.Error("Server.broadcastHandler: broadcast failed", "error", err)
		}
		if jsonRequest {
			writeJSONResponse(w, status, models.Error(text))
		} else {
			http.Error(w, text, status)
		}
		return
	}

	s.metrics.broadcasts.Inc()
	s.metrics.broadcastQueue.Add(float64(ack.Recipients))

	if jsonRequest {
		writeJSONResponse(w, http.StatusAccepted, models.QueuedWithMessage("Broadcast queued", ack))
		return
	}
	http.Redirect(w, r, DashboardSentRedirect, http.StatusSeeOther)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
