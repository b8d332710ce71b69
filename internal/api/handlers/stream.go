package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"driver-nav-service/internal/api/dto"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// reader drains client frames so control messages are handled, and closes
// gone when the client disconnects.
func reader(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pump writes next() to conn every time changed fires, until the client
// leaves or done closes. The first message is sent immediately.
func pump(conn *websocket.Conn, lg *slog.Logger, done <-chan struct{}, changed <-chan struct{}, next func() (any, bool)) {
	gone := make(chan struct{})
	go reader(conn, gone)

	for {
		if v, ok := next(); ok {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				lg.Debug("stream write failed", slog.Any("err", err))
				return
			}
		}

		select {
		case <-gone:
			return
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case <-changed:
		}
	}
}

// StreamHandler pushes navigation snapshots over a websocket on every change.
type StreamHandler struct {
	State StateSource
	Log   *slog.Logger
	// Done ends open streams on shutdown; hijacked connections outlive
	// http.Server.Shutdown.
	Done <-chan struct{}
}

func (h *StreamHandler) Navigation(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.Log.Debug("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	sub := h.State.Subscribe()
	defer sub.Unsubscribe()

	h.Log.Info("navigation stream opened", slog.String("remote", r.RemoteAddr))
	pump(conn, h.Log, h.Done, sub.C, func() (any, bool) {
		return dto.NewNavigationResponse(h.State.Snapshot()), true
	})
	h.Log.Info("navigation stream closed", slog.String("remote", r.RemoteAddr))
}
