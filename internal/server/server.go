// Package server is the chat message persistence service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gennadis/virtualparent/internal/auth"
	"github.com/gennadis/virtualparent/internal/chat"
)

const maxBodyBytes = 1 << 20

// MessageStore persists chat records.
type MessageStore interface {
	Write(ctx context.Context, record chat.Record) (chat.Record, error)
	Find(ctx context.Context, sessionID, userID string) ([]chat.Record, error)
}

type Server struct {
	store MessageStore
}

// NewServer returns the service handler. With requireToken set, /api routes
// reject requests that carry no bearer token.
func NewServer(store MessageStore, requireToken bool) http.Handler {
	s := &Server{store: store}

	var chats http.Handler = http.HandlerFunc(s.handleChats)
	if requireToken {
		chats = auth.RequireToken(chats)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/chats", chats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return chainMiddlewares(mux, withCORS, withLogging, withRequestID)
}

type createChatRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	IsUser    bool   `json:"isUser"`
}

// /api/chats
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateChat(w, r)
	case http.MethodGet:
		s.handleListChats(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		badRequest(w, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Message == "" {
		badRequest(w, "sessionId and message are required")
		return
	}

	record, err := s.store.Write(r.Context(), chat.Record{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Message:   req.Message,
		IsUser:    req.IsUser,
	})
	if err != nil {
		internalError(r.Context(), w, "Failed to save chat message", err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	records, err := s.store.Find(r.Context(), query.Get("sessionId"), query.Get("userId"))
	if err != nil {
		internalError(r.Context(), w, "Failed to fetch chat history", err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func internalError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	LoggerFromContext(ctx).Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

// ListenAndServe serves handler on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("persistence service listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
