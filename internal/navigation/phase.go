// Package navigation holds the driver's task lifecycle: a pure transition
// function over State, the effects a state asks for, and the Navigator that
// runs both on a single goroutine.
package navigation

import "driver-nav-service/internal/domain"

type Phase string

const (
	PhaseIdle                 Phase = "IDLE"
	PhaseOfferReceived        Phase = "OFFER_RECEIVED"
	PhaseNavigatingToPickup   Phase = "NAVIGATING_TO_PICKUP"
	PhaseAtPickup             Phase = "AT_PICKUP"
	PhaseNavigatingToDelivery Phase = "NAVIGATING_TO_DELIVERY"
	PhaseAtDelivery           Phase = "AT_DELIVERY"
	PhaseVerifyingID          Phase = "VERIFYING_ID"
	PhaseIDVerified           Phase = "ID_VERIFIED"
	PhaseReturningToStore     Phase = "RETURNING_TO_STORE"
)

// Navigating reports whether the phase follows a route to a destination.
func (p Phase) Navigating() bool {
	switch p {
	case PhaseNavigatingToPickup, PhaseNavigatingToDelivery, PhaseReturningToStore:
		return true
	}
	return false
}

// Destination returns the coordinate a navigating phase drives to. Returns
// to the store go back to the pickup.
func (p Phase) Destination(t *domain.Task) (domain.LatLng, bool) {
	if t == nil {
		return domain.LatLng{}, false
	}
	switch p {
	case PhaseNavigatingToPickup, PhaseReturningToStore:
		if t.Pickup != nil {
			return t.Pickup.LatLng(), true
		}
	case PhaseNavigatingToDelivery:
		if t.Delivery != nil {
			return t.Delivery.LatLng(), true
		}
	}
	return domain.LatLng{}, false
}

// OnTask is true for every phase that has a task attached.
func (p Phase) OnTask() bool { return p != PhaseIdle && p != "" }
