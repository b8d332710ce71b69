package handlers

import (
	"net/http"
	"strconv"

	"driver-nav-service/internal/ports"
)

const (
	defaultRoadRadius = 0.02
	maxRoadRadius     = 0.1
)

type RoadsHandler struct {
	Roads ports.RoadsNearer
}

// Get serves GET /v1/roads?lat=..&lng=..[&radius=..] from the map data
// cache. Stale or empty results are still 200; the body says so.
func (h *RoadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, r, http.StatusBadRequest, "lat must be a number between -90 and 90")
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		writeError(w, r, http.StatusBadRequest, "lng must be a number between -180 and 180")
		return
	}
	radius := defaultRoadRadius
	if s := q.Get("radius"); s != "" {
		radius, err = strconv.ParseFloat(s, 64)
		if err != nil || radius <= 0 || radius > maxRoadRadius {
			writeError(w, r, http.StatusBadRequest, "radius must be in (0, 0.1] degrees")
			return
		}
	}

	data, err := h.Roads.RoadsNear(r.Context(), lat, lng, radius)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, data)
}
