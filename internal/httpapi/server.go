// Package httpapi exposes the read-only operational surface: health,
// metrics and chat analytics. The WhatsApp webhook itself lives outside
// this service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mkovalenko/chatrelay/internal/archive"
	"github.com/mkovalenko/chatrelay/internal/bot"
	"github.com/mkovalenko/chatrelay/internal/chat"
	"github.com/mkovalenko/chatrelay/internal/observability"
)

// MessageHandler is what the relay endpoint needs from the bot engine.
type MessageHandler interface {
	HandleText(ctx context.Context, userID, text string) (bot.Reply, error)
}

type Server struct {
	store   *chat.Store
	archive *archive.Archive // nil when the archive is disabled
	engine  MessageHandler   // nil when no model backend is configured
}

func New(store *chat.Store, arch *archive.Archive, engine MessageHandler) *Server {
	return &Server{store: store, archive: arch, engine: engine}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/relay", s.handleRelay)
	r.Get("/api/chats", s.handleListChats)
	r.Get("/api/chats/{user}", s.handleChatHistory)
	r.Get("/api/chats/{user}/summary", s.handleChatSummary)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	backend := "memory"
	if s.store.Durable() {
		backend = "redis"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"history_backend": backend,
		"archive_enabled": s.archive != nil,
	})
}

type relayRequest struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// handleRelay is the entry point the webhook layer calls with an already
// parsed inbound message. It runs one full conversational turn.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "no_model", "no model backend configured")
		return
	}
	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.User) == "" || req.Text == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user and text are required")
		return
	}

	reply, err := s.engine.HandleText(r.Context(), req.User, req.Text)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidUser) || errors.Is(err, chat.ErrInvalidRole) || errors.Is(err, chat.ErrEmptyContent) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "model_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"reply":         reply.Text,
		"language":      reply.Language,
		"speech_locale": reply.SpeechLocale,
		"first_message": reply.FirstMessage,
	})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	var (
		users []string
		err   error
	)
	if s.archive != nil {
		users, err = s.archive.Users(r.Context())
	} else {
		users, err = s.store.Users(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if users == nil {
		users = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total": len(users),
		"chats": users,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	// Prefer the full archive; fall back to the bounded context window.
	if s.archive != nil {
		entries, err := s.archive.History(r.Context(), user, limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
			return
		}
		if entries == nil {
			entries = []archive.Entry{}
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"user":           user,
			"source":         "archive",
			"total_messages": len(entries),
			"messages":       entries,
		})
		return
	}

	history, err := s.store.History(r.Context(), user)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	if history == nil {
		history = []chat.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user":           user,
		"source":         "context_window",
		"total_messages": len(history),
		"messages":       history,
	})
}

func (s *Server) handleChatSummary(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	sum, err := s.store.Summarize(r.Context(), user)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
