package handlers

import (
	"context"
	"errors"
	"net/http"

	"driver-nav-service/internal/api/dto"
	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/navigation"
	"driver-nav-service/internal/ports"

	"github.com/gorilla/mux"
)

// StateSource is the read side of the navigator.
type StateSource interface {
	Snapshot() navigation.State
	Subscribe() *navigation.Subscription
}

// Actions are the driver operations of a session.
type Actions interface {
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error
	ConfirmPickup(ctx context.Context) error
	StartIDCheck(ctx context.Context, sessionRef string) (ports.IDCheckResult, error)
	Refuse(ctx context.Context, reasonCode, notes string) error
	ConfirmDelivery(ctx context.Context, attestationRef string) error
	Reset(ctx context.Context, reason string) error
}

type NavigationHandler struct {
	State   StateSource
	Actions Actions
}

func (h *NavigationHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, dto.NewNavigationResponse(h.State.Snapshot()))
}

// Action runs one driver action and responds with the resulting snapshot.
func (h *NavigationHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req dto.ActionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	var (
		err     error
		idCheck *dto.IDCheckResponse
	)
	switch action := mux.Vars(r)["action"]; action {
	case "accept":
		err = h.Actions.Accept(ctx)
	case "reject":
		err = h.Actions.Reject(ctx)
	case "confirm_pickup":
		err = h.Actions.ConfirmPickup(ctx)
	case "start_id_check":
		if req.SessionRef == "" {
			writeError(w, r, http.StatusBadRequest, "session_ref is required")
			return
		}
		var res ports.IDCheckResult
		res, err = h.Actions.StartIDCheck(ctx, req.SessionRef)
		if err == nil {
			idCheck = &dto.IDCheckResponse{Passed: res.Passed, ReasonCode: res.ReasonCode}
		}
	case "refuse":
		if req.ReasonCode == "" {
			writeError(w, r, http.StatusBadRequest, "reason_code is required")
			return
		}
		err = h.Actions.Refuse(ctx, req.ReasonCode, req.Notes)
	case "confirm_delivery":
		err = h.Actions.ConfirmDelivery(ctx, req.AttestationRef)
	case "reset":
		reason := req.Reason
		if reason == "" {
			reason = "driver"
		}
		err = h.Actions.Reset(ctx, reason)
	default:
		writeError(w, r, http.StatusNotFound, "unknown action "+action)
		return
	}
	if err != nil {
		writeError(w, r, actionStatus(err), err.Error())
		return
	}

	res := dto.NewNavigationResponse(h.State.Snapshot())
	res.IDCheck = idCheck
	writeJSON(w, r, http.StatusOK, res)
}

func actionStatus(err error) int {
	switch {
	case errors.Is(err, navigation.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTask):
		return http.StatusUnprocessableEntity
	case errors.Is(err, navigation.ErrStopped), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		// The backend refused or could not be reached.
		return http.StatusBadGateway
	}
}
