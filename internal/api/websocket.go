package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/omharigupta/datasynth/internal/identity"
)

const wsWriteTimeout = 10 * time.Second

// wsMessage is one inbound websocket frame.
type wsMessage struct {
	Type string `json:"type"`
	ChatRequest
}

// wsReply is one outbound websocket frame.
type wsReply struct {
	Type  string        `json:"type"`
	Error string        `json:"error,omitempty"`
	Turn  *ChatResponse `json:"turn,omitempty"`
}

// ServeChatSocket runs a chat session over a websocket. Each text frame
// carries one ChatRequest and is answered with one reply frame. Frames of
// type "ping" are answered with "pong".
func (h *KYBHandler) ServeChatSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Chat WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns(),
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(h.maxBodySize)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if writeErr := h.writeFrame(ctx, ws, wsReply{Type: "error", Error: "invalid message"}); writeErr != nil {
				return
			}
			continue
		}
		if msg.Type == "ping" {
			if err := h.writeFrame(ctx, ws, wsReply{Type: "pong"}); err != nil {
				return
			}
			continue
		}

		if msg.SessionID == "" {
			msg.SessionID = sessionID
		}
		resp, err := h.runTurn(ctx, userID, msg.ChatRequest, "chat_ws", "")
		reply := wsReply{Type: "turn", Turn: resp}
		if err != nil {
			reply = wsReply{Type: "error", Error: turnErrorMessage(err)}
		}
		if err := h.writeFrame(ctx, ws, reply); err != nil {
			slog.Debug("WebSocket write error", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *KYBHandler) writeFrame(ctx context.Context, ws *websocket.Conn, v wsReply) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}

func (h *KYBHandler) originPatterns() []string {
	if h.frontendURL == "" {
		return []string{"*"}
	}
	return []string{hostOf(h.frontendURL)}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, errEmptyMessage), errors.Is(err, errSessionNotFound), errors.Is(err, errRateLimited):
		return err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled"
	default:
		slog.Error("Chat turn failed", "error", err)
		return "failed to process message"
	}
}
