package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"animeshelf/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Native clients send no Origin; browsers are already gated by the token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamMessage struct {
	Type    string         `json:"type"`
	Profile models.Profile `json:"profile"`
}

// StreamHandler pushes profile versions over a WebSocket.
type StreamHandler struct {
	profiles ProfileService
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(profilesService ProfileService) *StreamHandler {
	return &StreamHandler{profiles: profilesService}
}

// Stream sends the current profile, then every committed version, until
// either side closes.
// GET /api/profile/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.profiles.Subscribe(ctx, uid)
	if err != nil {
		serviceError(w, r, "subscribe", err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[stream] upgrade for %s failed: %v", uid, err)
		return
	}
	defer conn.Close()

	go readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case p, ok := <-sub.Updates():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(streamMessage{Type: "profile", Profile: p}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump discards client frames and cancels the stream once the client
// goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[stream] unexpected close: %v", err)
			}
			return
		}
	}
}
