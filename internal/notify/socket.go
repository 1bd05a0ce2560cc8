package notify

import (
	"encoding/json"
	"log"
	"time"

	"webcarros/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// ackMessage is sent by the page once it displayed a toast.
type ackMessage struct {
	Ack int64 `json:"ack"`
}

// Serve streams q's toasts to conn until either side goes away.
func Serve(conn *websocket.Conn, q *Queue, clientID string) {
	observability.NotificationSockets.Inc()
	defer observability.NotificationSockets.Dec()

	toasts, cancel := q.Subscribe()
	defer cancel()

	readDone := make(chan struct{})
	go readPump(conn, q, clientID, readDone)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case t, ok := <-toasts:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(t)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}

func readPump(conn *websocket.Conn, q *Queue, clientID string, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("notifications: read error (client %s): %v", clientID, err)
			}
			return
		}
		var msg ackMessage
		if json.Unmarshal(message, &msg) == nil && msg.Ack > 0 {
			q.Ack(msg.Ack)
		}
	}
}
