package api

import (
	"log/slog"
	"net/http"

	"driver-nav-service/internal/api/handlers"
	"driver-nav-service/internal/platform/logging"
	"driver-nav-service/internal/ports"

	"github.com/gorilla/mux"
)

// Deps are the collaborators the HTTP surface exposes. Roads, Scenes, Zoom
// and Location are optional; their routes are left out when nil.
type Deps struct {
	State   handlers.StateSource
	Actions handlers.Actions
	Roads   ports.RoadsNearer
	Scenes  *handlers.SceneHub
	Zoom    handlers.Zoomer
	// Location receives device fixes when positions come from the host.
	Location handlers.PositionSink
	// Done closes open websocket streams.
	Done <-chan struct{}
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(d Deps, lg *slog.Logger) http.Handler {
	lg = logging.OrDiscard(lg)
	r := mux.NewRouter()

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	nav := &handlers.NavigationHandler{State: d.State, Actions: d.Actions}
	stream := &handlers.StreamHandler{State: d.State, Log: lg, Done: d.Done}
	v1.HandleFunc("/navigation", nav.Get).Methods(http.MethodGet)
	v1.HandleFunc("/navigation/actions/{action}", nav.Action).Methods(http.MethodPost)
	v1.HandleFunc("/navigation/stream", stream.Navigation).Methods(http.MethodGet)

	if d.Location != nil {
		loc := &handlers.LocationHandler{Sink: d.Location}
		v1.HandleFunc("/location", loc.Post).Methods(http.MethodPost)
	}
	if d.Roads != nil {
		roads := &handlers.RoadsHandler{Roads: d.Roads}
		v1.HandleFunc("/roads", roads.Get).Methods(http.MethodGet)
	}
	if d.Scenes != nil {
		if d.Scenes.Log == nil {
			d.Scenes.Log = lg
		}
		v1.HandleFunc("/scene", d.Scenes.Get).Methods(http.MethodGet)
		v1.HandleFunc("/scene/stream", d.Scenes.Stream).Methods(http.MethodGet)
	}
	if d.Zoom != nil {
		zoom := &handlers.ZoomHandler{Renderer: d.Zoom}
		v1.HandleFunc("/scene/zoom", zoom.Put).Methods(http.MethodPut)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	})

	return requestIDMiddleware(loggingMiddleware(lg, r))
}
