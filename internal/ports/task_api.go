package ports

import (
	"context"

	"driver-nav-service/internal/domain"
)

type DriverStatus string

const (
	DriverIdle   DriverStatus = "IDLE"
	DriverOnTask DriverStatus = "ON_TASK"
)

// Periodic driver location/status report.
type DriverUpdate struct {
	Lat    float64      `json:"lat"`
	Lng    float64      `json:"lng"`
	Status DriverStatus `json:"status"`
}

// Outcome of a doorstep identity check.
type IDCheckResult struct {
	Passed     bool
	ReasonCode string
}

// Contract for the backend task lifecycle API.
// Mutating calls are idempotent per (action, task or order).
type TaskAPI interface {
	// Return the task currently assigned or offered to the driver, nil when none.
	GetTask(ctx context.Context, driverID string) (*domain.Task, error)
	UpdateDriver(ctx context.Context, driverID string, u DriverUpdate) error

	Accept(ctx context.Context, taskID, driverID string) error
	Reject(ctx context.Context, taskID, driverID string) error
	Start(ctx context.Context, taskID, driverID string) error
	Complete(ctx context.Context, taskID, driverID string) error
	CompleteReturn(ctx context.Context, taskID string) error

	DoorstepIDCheck(ctx context.Context, orderID, sessionRef string) (IDCheckResult, error)
	DeliverConfirm(ctx context.Context, orderID, attestationRef string, gps domain.LatLng) error
	Refuse(ctx context.Context, orderID, reasonCode, notes string, gps domain.LatLng) error
}
