package api

import (
	"log/slog"
	"net/http"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
	"github.com/SmartInclusion/SmartInclusion/internal/ussd"
)

// ussdHandler answers USSD gateway callbacks. Every well-formed POST gets 200
// with a single CON/END line, whatever the user typed.
func (s *Server) ussdHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.ussdHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		// Unparseable fields read as empty, which replays the root menu.
		slog.Warn("Server.ussdHandler: failed to parse form", "error", err)
	}

	in := models.SessionInput{
		SessionID:   r.FormValue("sessionId"),
		ServiceCode: r.FormValue("serviceCode"),
		PhoneNumber: r.FormValue("phoneNumber"),
		Text:        r.FormValue("text"),
	}
	outcome := s.dispatcher.Evaluate(r.Context(), in)
	s.metrics.ussdOutcomes.WithLabelValues(outcome.Kind.String()).Inc()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(ussd.Format(outcome))); err != nil {
		slog.Error("Server.ussdHandler: failed to write response", "error", err, "session_id", in.SessionID)
	}
}
