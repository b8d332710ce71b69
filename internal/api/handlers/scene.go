package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"driver-nav-service/internal/platform/logging"
	"driver-nav-service/internal/render"
)

var ErrHubClosed = errors.New("scene hub closed")

// SceneHub is a render.Surface that keeps the latest scene for HTTP clients
// and fans it out to websocket subscribers.
type SceneHub struct {
	Log *slog.Logger

	mu     sync.Mutex
	latest *render.Scene
	subs   map[chan struct{}]struct{}
	done   chan struct{}
	once   sync.Once
}

func NewSceneHub(lg *slog.Logger) *SceneHub {
	return &SceneHub{
		Log:  logging.OrDiscard(lg),
		subs: make(map[chan struct{}]struct{}),
		done: make(chan struct{}),
	}
}

func (h *SceneHub) Draw(ctx context.Context, sc render.Scene) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	h.latest = &sc
	for c := range h.subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
	return nil
}

func (h *SceneHub) Close() error {
	h.once.Do(func() { close(h.done) })
	return nil
}

func (h *SceneHub) Latest() (render.Scene, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return render.Scene{}, false
	}
	return *h.latest, true
}

func (h *SceneHub) subscribe() chan struct{} {
	c := make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *SceneHub) unsubscribe(c chan struct{}) {
	h.mu.Lock()
	delete(h.subs, c)
	h.mu.Unlock()
}

func (h *SceneHub) Get(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.Latest()
	if !ok {
		writeError(w, r, http.StatusServiceUnavailable, "no scene drawn yet")
		return
	}
	writeJSON(w, r, http.StatusOK, sc)
}

func (h *SceneHub) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Debug("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	c := h.subscribe()
	defer h.unsubscribe(c)

	pump(conn, h.Log, h.done, c, func() (any, bool) {
		sc, ok := h.Latest()
		return sc, ok
	})
}

// Zoomer adjusts the renderer's free zoom.
type Zoomer interface {
	SetZoom(z float64) float64
}

type ZoomHandler struct {
	Renderer Zoomer
}

type zoomRequest struct {
	Zoom *float64 `json:"zoom"`
}

func (h *ZoomHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Zoom == nil {
		writeError(w, r, http.StatusBadRequest, "zoom is required")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]float64{"zoom": h.Renderer.SetZoom(*req.Zoom)})
}
