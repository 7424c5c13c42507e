package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jujuling/fanline/internal/models"
	"github.com/jujuling/fanline/internal/webhook"
)

// signatureHeader carries the webhook request signature.
const signatureHeader = "X-Line-Signature"

// webhookHandler receives the platform's event batches. Authentication
// happens before any event is touched: with a configured secret a bad or
// missing signature rejects the whole request with 403 and no state
// changes. Without a secret verification is skipped with a warning, which
// keeps local development working but must never happen in production.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("Server.webhookHandler: failed to read request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
		return
	}

	if s.verifier.SecretConfigured() {
		if !s.verifier.VerifySignature(body, r.Header.Get(signatureHeader)) {
			slog.Warn("Server.webhookHandler: signature verification failed", "remote_addr", r.RemoteAddr)
			writeJSONResponse(w, http.StatusForbidden, models.Error("Signature validation failed"))
			return
		}
	} else {
		slog.Warn("Server.webhookHandler: channel secret not configured, skipping signature verification")
	}

	events, err := webhook.ParseBatch(body)
	if err != nil {
		slog.Warn("Server.webhookHandler: failed to parse webhook body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	// The batch is worked through before acknowledging; per-event failures
	// are isolated inside the dispatcher and never fail the request.
	s.dispatcher.HandleBatch(r.Context(), events)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// attemptsHandler returns recent delivery-attempt audit rows, newest
// first. An optional limit query parameter caps the page size.
func (s *Server) attemptsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultAttemptsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxAttemptsLimit {
		limit = maxAttemptsLimit
	}

	attempts, err := s.store.ListDeliveryAttempts(limit)
	if err != nil {
		slog.Error("Server.attemptsHandler: failed to list delivery attempts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list delivery attempts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(attempts))
}
