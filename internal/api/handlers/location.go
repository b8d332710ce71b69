package handlers

import (
	"context"
	"net/http"
	"time"

	"driver-nav-service/internal/domain"
)

// PositionSink accepts fixes from a host device.
type PositionSink interface {
	Push(ctx context.Context, p domain.Position) error
}

type LocationHandler struct {
	Sink PositionSink
}

type locationRequest struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Speed    *float64 `json:"speed"`
	Heading  *float64 `json:"heading"`
	Accuracy float64  `json:"accuracy"`
}

// Post feeds one device fix into the session's location source.
func (h *LocationHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, r, http.StatusBadRequest, "lat and lng are required")
		return
	}
	if !(domain.LatLng{Lat: *req.Lat, Lng: *req.Lng}).Valid() {
		writeError(w, r, http.StatusBadRequest, "coordinates out of range")
		return
	}

	p := domain.Position{
		Lat:      *req.Lat,
		Lng:      *req.Lng,
		Speed:    req.Speed,
		Heading:  req.Heading,
		Accuracy: req.Accuracy,
		At:       time.Now(),
	}
	if err := h.Sink.Push(r.Context(), p); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
