// README: Transfusion schedule aggregate and status definitions.
package schedule

import (
	"time"

	"hemolink/internal/types"
)

type Status string

const (
	StatusPlanned   Status = "planned"
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Schedule is one transfusion cycle for a patient. CycleNumber strictly
// increases per patient; at most one planned or booked row exists per
// patient at a time, enforced by the store.
type Schedule struct {
	ID                  types.ID
	PatientID           types.ID
	CohortID            types.ID
	CycleNumber         int
	ScheduledFor        *time.Time
	Status              Status
	StatusVersion       int
	Component           string
	Units               int
	HospitalID          *types.ID
	AssignedDonorID     *types.ID
	UsedEmergencyBackup bool
	CreatedAt           time.Time
	BookedAt            *time.Time
	CompletedAt         *time.Time
	CancelledAt         *time.Time
}

// View joins a schedule row with donor and hospital name snapshots for
// listing.
type View struct {
	Schedule
	DonorName    string
	HospitalName string
}

// Event is one audit row in the schedule's transition trail.
type Event struct {
	ID         int64
	ScheduleID types.ID
	FromStatus Status
	ToStatus   Status
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the schedule state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPlanned: {StatusBooked, StatusCancelled},
	StatusBooked:  {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func IsTerminal(s Status) bool {
	return len(AllowedTransitions[s]) == 0
}
