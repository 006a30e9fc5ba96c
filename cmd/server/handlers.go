package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brunobiangulo/gokg"
	"github.com/brunobiangulo/gokg/reasoning"
)

// askTimeout bounds one question, retrieval and synthesis included.
const askTimeout = 5 * time.Minute

const (
	msgEmptyQuestion = "La domanda non può essere vuota."
	msgInternal      = "Si è verificato un errore interno durante l'elaborazione della domanda."
	msgRawDisabled   = "La ricerca sui dati grezzi non è disponibile."
)

type asker interface {
	Ask(ctx context.Context, question string) (*reasoning.Result, error)
}

type routerConfig struct {
	Aggregated  asker
	Raw         asker        // nil disables use_raw_data
	Docs        http.Handler // nil disables /docs/
	APIKey      string
	CORSOrigins string
}

func newRouter(cfg routerConfig) http.Handler {
	h := &handler{aggregated: cfg.Aggregated, raw: cfg.Raw}

	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(requestIDMiddleware)
	r.Use(logMiddleware)

	r.Get("/health", h.handleHealth)
	if cfg.Docs != nil {
		r.Handle("/docs/*", cfg.Docs)
	}
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(cfg.APIKey))
		r.Post("/ask", h.handleAsk)
	})
	return r
}

type handler struct {
	aggregated asker
	raw        asker
}

type askRequest struct {
	Question string `json:"question"`
	// UseRawData defaults to true when omitted.
	UseRawData *bool `json:"use_raw_data,omitempty"`
}

type askResponse struct {
	Question string             `json:"question"`
	Answer   string             `json:"answer"`
	Contexts []string           `json:"contexts"`
	Sources  []reasoning.Source `json:"sources"`
	DataType string             `json:"data_type"`
}

// POST /ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "richiesta non valida: atteso JSON con 'question'")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, msgEmptyQuestion)
		return
	}

	svc := h.aggregated
	if req.UseRawData == nil || *req.UseRawData {
		if h.raw == nil {
			writeError(w, http.StatusServiceUnavailable, msgRawDisabled)
			return
		}
		svc = h.raw
	}

	ctx, cancel := context.WithTimeout(r.Context(), askTimeout)
	defer cancel()

	res, err := svc.Ask(ctx, req.Question)
	switch {
	case errors.Is(err, gokg.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, msgEmptyQuestion)
		return
	case err != nil:
		slog.Error("ask error", "request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	sources := res.Sources
	if sources == nil {
		sources = []reasoning.Source{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		Question: res.Question,
		Answer:   res.Answer,
		Contexts: res.Contexts,
		Sources:  sources,
		DataType: res.DataType,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"raw_data": h.raw != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
