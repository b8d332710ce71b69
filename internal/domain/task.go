package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidTask = errors.New("invalid task")

type TaskStatus string

const (
	TaskOffered    TaskStatus = "OFFERED"
	TaskAccepted   TaskStatus = "ACCEPTED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskUnassigned TaskStatus = "UNASSIGNED"
	TaskFailed     TaskStatus = "FAILED"
)

// A pickup (store) or delivery (customer) location of a task.
type Waypoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Name    string  `json:"name,omitempty"`
	Address string  `json:"address,omitempty"`
}

func (w Waypoint) LatLng() LatLng { return LatLng{Lat: w.Lat, Lng: w.Lng} }

// Task is a delivery assignment offered to the driver.
// Pickup and Delivery are nil when the backend did not provide coordinates.
type Task struct {
	ID       string     `json:"id"`
	OrderID  string     `json:"order_id"`
	Status   TaskStatus `json:"status"`
	Pickup   *Waypoint  `json:"pickup"`
	Delivery *Waypoint  `json:"delivery"`
}

// Validate rejects tasks that cannot be navigated: both waypoints must be
// present with in-range coordinates.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidTask)
	}
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	if t.Pickup == nil || !t.Pickup.LatLng().Valid() {
		return fmt.Errorf("%w: task %s: pickup coordinates missing or out of range", ErrInvalidTask, t.ID)
	}
	if t.Delivery == nil || !t.Delivery.LatLng().Valid() {
		return fmt.Errorf("%w: task %s: delivery coordinates missing or out of range", ErrInvalidTask, t.ID)
	}
	return nil
}
