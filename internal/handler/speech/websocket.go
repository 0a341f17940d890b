package speech

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/paper-tribunal/backend/internal/service/tribunal"
	"github.com/zhouzirui/paper-tribunal/backend/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketHandler serves the live session feed over a WebSocket:
// outbound tribunal events, inbound user messages and interrupts.
type WebSocketHandler struct {
	svc      *tribunal.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket handler.
func NewWebSocketHandler(svc *tribunal.Service) *WebSocketHandler {
	return &WebSocketHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/tribunal/{id}", h.handleSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *WebSocketHandler) handleSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	snap, err := h.svc.State(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] session=%s upgrade failed: %v", sessionID, err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] session=%s connected", sessionID)

	events, cancel := h.svc.Bus().Subscribe(sessionID)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Local channel for reader-side errors so all writes stay on the
	// writer goroutine.
	errs := make(chan string, 8)

	go h.writeLoop(ctx, conn, sessionID, snap.Session, events, errs)
	h.readLoop(ctx, conn, sessionID, errs)
}

// readLoop consumes inbound frames until the peer goes away.
func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, errs chan<- string) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] session=%s read error: %v", sessionID, err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.reportError(errs, "invalid message")
			continue
		}

		switch msg.Type {
		case "user_message":
			if msg.Text == "" {
				h.reportError(errs, "text is required")
				continue
			}
			// Generation takes a while; keep the read loop responsive so
			// an interrupt frame can arrive mid-reply.
			go func(text string) {
				if _, err := h.svc.SendMessage(ctx, sessionID, text, false); err != nil {
					h.reportError(errs, err.Error())
				}
			}(msg.Text)
		case "interrupt":
			if err := h.svc.Interrupt(ctx, sessionID); err != nil {
				h.reportError(errs, err.Error())
			}
		default:
			h.reportError(errs, "unknown message type")
		}
	}
}

// writeLoop serializes all outbound frames: the opening snapshot, bus
// events, reader errors and keepalive pings.
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sessionID string, opening any, events <-chan tribunal.Event, errs <-chan string) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	h.send(conn, outgoingMessage{
		Type:      string(tribunal.EventSession),
		SessionID: sessionID,
		Data:      opening,
		Timestamp: time.Now().UnixMilli(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session evicted"),
					time.Now().Add(writeWait))
				return
			}
			if !h.send(conn, outgoingMessage{
				Type:      string(evt.Type),
				SessionID: sessionID,
				Data:      evt.Payload,
				Timestamp: evt.At.UnixMilli(),
			}) {
				return
			}
		case text := <-errs:
			if !h.send(conn, outgoingMessage{
				Type:      string(tribunal.EventError),
				SessionID: sessionID,
				Data:      map[string]string{"error": text},
				Timestamp: time.Now().UnixMilli(),
			}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg outgoingMessage) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] session=%s write failed: %v", msg.SessionID, err)
		return false
	}
	return true
}

func (h *WebSocketHandler) reportError(errs chan<- string, text string) {
	select {
	case errs <- text:
	default:
	}
}
