package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omharigupta/datasynth/internal/convlog"
	"github.com/omharigupta/datasynth/internal/domain"
	"github.com/omharigupta/datasynth/internal/identity"
	"github.com/omharigupta/datasynth/internal/kyb"
	"github.com/omharigupta/datasynth/internal/profile"
	"github.com/omharigupta/datasynth/internal/workflow"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

var (
	errSessionNotFound = errors.New("session not found")
	errRateLimited     = errors.New("rate limit exceeded")
	errEmptyMessage    = errors.New("message is required")
)

// ChatRequest is the body of POST /api/kyb/chat and of each websocket frame.
type ChatRequest struct {
	SessionID string                 `json:"session_id"`
	Message   string                 `json:"message"`
	History   []domain.StoredMessage `json:"history,omitempty"`
}

// ChatResponse is returned for every processed turn.
type ChatResponse struct {
	Reply     string                   `json:"reply"`
	Session   *domain.Session          `json:"session"`
	Knowledge domain.KnowledgeSnapshot `json:"knowledge"`
}

// SessionStatus is the body of GET /api/kyb/sessions/{id}.
type SessionStatus struct {
	Session    *domain.Session `json:"session"`
	Score      float64         `json:"completeness_score"`
	Complete   bool            `json:"complete"`
	Sufficient bool            `json:"sufficient"`
	Missing    []string        `json:"missing"`
}

// KYBHandler serves the conversation endpoints.
type KYBHandler struct {
	*Handler
	engine      *workflow.Engine
	records     kyb.Store
	rateLimiter *RateLimiter
	locks       *SessionLocks
	log         convlog.ConversationLogger
	maxBodySize int64
	turnTimeout time.Duration
}

// KYBHandlerOptions holds optional KYBHandler dependencies.
type KYBHandlerOptions struct {
	RateLimiter *RateLimiter
	Log         convlog.ConversationLogger
	MaxBodySize int64
	// TurnTimeout bounds one turn, including scraping and analysis.
	TurnTimeout time.Duration
}

// NewKYBHandler creates the conversation handler.
func NewKYBHandler(base *Handler, engine *workflow.Engine, records kyb.Store, opts KYBHandlerOptions) *KYBHandler {
	if opts.Log == nil {
		opts.Log = convlog.Noop{}
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxRequestBodySize
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 90 * time.Second
	}
	return &KYBHandler{
		Handler:     base,
		engine:      engine,
		records:     records,
		rateLimiter: opts.RateLimiter,
		locks:       NewSessionLocks(),
		log:         opts.Log,
		maxBodySize: opts.MaxBodySize,
		turnTimeout: opts.TurnTimeout,
	}
}

// RegisterRoutes registers the KYB routes.
func (h *KYBHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/kyb", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{id}", h.GetSession)
		r.Get("/sessions/{id}/profile", h.GetProfile)
		r.Delete("/sessions/{id}", h.DeleteSession)
		r.Post("/chat", h.HandleChat)
	})
	r.Get("/ws/chat", h.ServeChatSocket)
}

// CreateSession starts a new conversation and returns the greeting.
func (h *KYBHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	res := h.engine.Process(r.Context(), workflow.Turn{}, &domain.Session{UserID: userID})
	if err := h.repo.UpsertSession(r.Context(), res.Session); err != nil {
		slog.Error("Failed to save new session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	slog.Info("KYB session created", "user_id", userID, "session_id", res.Session.SessionID)
	h.logMessage(userID, res.Session, "chat_http", "inbound", "chat_assistant_message", res.Reply, chiMiddleware.GetReqID(r.Context()))

	JSON(w, http.StatusCreated, ChatResponse{
		Reply:     res.Reply,
		Session:   res.Session,
		Knowledge: res.Knowledge,
	})
}

// ListSessions returns the caller's sessions, newest first.
func (h *KYBHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessions, err := h.repo.ListUserSessions(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession returns session state with its completeness assessment.
func (h *KYBHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	snap := profile.SnapshotOf(sess)
	missing := profile.Missing(sess.Knowledge)
	if missing == nil {
		missing = []string{}
	}
	JSON(w, http.StatusOK, SessionStatus{
		Session:    sess,
		Score:      profile.Score(snap),
		Complete:   profile.Complete(snap),
		Sufficient: profile.IsSufficient(sess.Knowledge),
		Missing:    missing,
	})
}

// GetProfile returns the persisted KYB record of a session.
func (h *KYBHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	if !sess.HasBackingRecord() {
		Error(w, http.StatusNotFound, "profile not created yet")
		return
	}
	rec, err := h.records.Read(r.Context(), sess.KYBFile)
	if errors.Is(err, kyb.ErrNotFound) {
		Error(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		slog.Error("Failed to read KYB record", "error", err, "session_id", sess.SessionID)
		Error(w, http.StatusInternalServerError, "failed to read profile")
		return
	}
	JSON(w, http.StatusOK, rec)
}

// DeleteSession discards session state. The persisted record is kept.
func (h *KYBHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	unlock, err := h.locks.Lock(r.Context(), sess.SessionID)
	if err != nil {
		Error(w, http.StatusRequestTimeout, "request cancelled")
		return
	}
	defer unlock()

	if err := h.repo.DeleteSession(r.Context(), sess.SessionID); err != nil {
		slog.Error("Failed to delete session", "error", err, "session_id", sess.SessionID)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	slog.Info("KYB session deleted", "session_id", sess.SessionID, "kyb_file", sess.KYBFile)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleChat processes one turn. Clients sending Accept: text/event-stream
// receive the result as a single SSE message event.
func (h *KYBHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = identity.SessionIDFromContext(r.Context())
	}

	resp, err := h.runTurn(r.Context(), userID, req, "chat_http", chiMiddleware.GetReqID(r.Context()))
	if err != nil {
		writeTurnError(w, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.writeSSEResult(w, resp)
		return
	}
	JSON(w, http.StatusOK, resp)
}

func (h *KYBHandler) writeSSEResult(w http.ResponseWriter, resp *ChatResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	data, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("failed to marshal chat response", "error", err)
		if writeErr := writeSSE(w, "error", "failed to serialize response"); writeErr != nil {
			slog.Warn("failed to write SSE serialization error", "error", writeErr)
		}
		return
	}
	if err := writeSSE(w, "message", string(data)); err != nil {
		slog.Warn("failed to write SSE message event", "error", err)
		return
	}
	if err := writeSSE(w, "done", `{}`); err != nil {
		slog.Warn("failed to write SSE done event", "error", err)
		return
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// runTurn loads the session, processes one message under the session lock
// and saves the result.
func (h *KYBHandler) runTurn(ctx context.Context, userID string, req ChatRequest, channel, requestID string) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errEmptyMessage
	}
	if req.SessionID == "" || !identity.ValidSessionID(req.SessionID) {
		return nil, errSessionNotFound
	}
	if h.rateLimiter != nil && !h.rateLimiter.Allow(userID) {
		return nil, errRateLimited
	}

	unlock, err := h.locks.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := h.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.UserID != userID {
		return nil, errSessionNotFound
	}

	slog.Info("KYB chat turn",
		"user_id", userID,
		"session_id", sess.SessionID,
		"step", sess.Step,
		"message_length", len(req.Message),
	)
	h.logMessage(userID, sess, channel, "outbound", "chat_user_message", req.Message, requestID)

	turnCtx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	res := h.engine.Process(turnCtx, workflow.Turn{Text: req.Message, History: req.History}, sess)
	cancel()

	// Saving uses a fresh context so a client disconnect after processing
	// does not lose the turn.
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer saveCancel()
	if err := h.repo.UpsertSession(saveCtx, res.Session); err != nil {
		slog.Error("Failed to save session after turn", "error", err, "session_id", sess.SessionID)
	}

	h.logMessage(userID, res.Session, channel, "inbound", "chat_assistant_message", res.Reply, requestID)

	return &ChatResponse{
		Reply:     res.Reply,
		Session:   res.Session,
		Knowledge: res.Knowledge,
	}, nil
}

func writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyMessage):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errSessionNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errRateLimited):
		Error(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusRequestTimeout, "request cancelled")
	default:
		slog.Error("Chat turn failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to process message")
	}
}

// ownedSession loads the {id} session and checks it belongs to the caller.
func (h *KYBHandler) ownedSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	userID := identity.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if !identity.ValidSessionID(id) {
		Error(w, http.StatusNotFound, errSessionNotFound.Error())
		return nil, false
	}
	sess, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	if sess == nil || sess.UserID != userID {
		Error(w, http.StatusNotFound, errSessionNotFound.Error())
		return nil, false
	}
	return sess, true
}

func (h *KYBHandler) logMessage(userID string, sess *domain.Session, channel, direction, eventType, content, requestID string) {
	h.log.Log(convlog.ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sess.SessionID,
		Channel:    channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Step:       sess.Step,
		Meta: map[string]any{
			"request_id": requestID,
		},
	})
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
