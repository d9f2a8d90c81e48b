// README: Blood request aggregate and emergency broadcast records.
package request

import (
	"time"

	"hemolink/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusMatched   Status = "matched"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

type RequestType string

const (
	TypeEmergency RequestType = "emergency"
	TypeScheduled RequestType = "scheduled"
)

// BloodRequest is created by the patient-facing request flow; this engine
// only reads it and validates its state before broadcasting.
type BloodRequest struct {
	ID            types.ID
	PatientID     types.ID
	Type          RequestType
	BloodGroup    string
	Component     string
	QuantityUnits int
	Urgency       string
	Status        Status
	Coordinates   *types.Point
	CreatedAt     time.Time
}

// Broadcast is the persisted record of one emergency fan-out. Exactly one
// row is written per dispatch invocation, before any notification attempt.
type Broadcast struct {
	ID           types.ID
	RequestID    types.ID
	RadiusKm     float64
	MatchedCount int
	CreatedAt    time.Time
}

// BroadcastResult is returned to the caller once the record is durable.
// Delivery happens after the fact and never affects this result.
type BroadcastResult struct {
	BroadcastID  types.ID
	RequestID    types.ID
	MatchedCount int
	NotifyQueued int
}
