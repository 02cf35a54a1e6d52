// Package httpapi serves the chat endpoint consumed by the front end, plus
// health and landing pages.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxBodyBytes caps chat request bodies.
const maxBodyBytes = 1 << 20

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ErrorResponse is returned for malformed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Answerer turns a question into a display string. It never fails.
type Answerer interface {
	Answer(ctx context.Context, query string) string
}

// NewChatHandler returns the POST /api/chat handler. Model and index
// failures are reported inside a 200 reply; only a malformed body is a 400.
func NewChatHandler(a Answerer, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			logger.Warn("bad chat request", "error", err)
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{Reply: a.Answer(r.Context(), req.Query)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
