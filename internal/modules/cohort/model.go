// README: Rotating donor cohort aggregate.
package cohort

import (
	"time"

	"hemolink/internal/types"
)

// Cohort is the fixed-size rotating donor group for one patient. A patient
// has at most one active cohort; start_date anchors the rotation cadence.
type Cohort struct {
	ID        types.ID
	PatientID types.ID
	Name      string
	StartDate time.Time
	Active    bool
	CreatedAt time.Time
}

// Membership is one ordered slot in a cohort. DonorID is nil while the slot
// is pending. LastDonationDate is a denormalized cache refreshed when a
// cycle completes.
type Membership struct {
	CohortID         types.ID
	DonorID          *types.ID
	SequenceOrder    int
	LastDonationDate *time.Time
	NextScheduledFor *time.Time
}

// MemberView joins a membership slot with the current donor snapshot for
// the cohort details screen.
type MemberView struct {
	SequenceOrder    int
	DonorID          *types.ID
	Name             string
	Phone            string
	BloodGroup       string
	LocationText     string
	Ready            bool
	EligibilityLabel string
	LastDonationDate *time.Time
	NextScheduledFor *time.Time
}

// Details is the getCohortDetails response: all slots in rotation order plus
// the patient's next planned/booked transfusion, when one exists.
type Details struct {
	Cohort             *Cohort
	Members            []MemberView
	NextTransfusionFor *time.Time
}

// RotationPosition maps a cycle number onto a slot: cycle N selects position
// N mod size, so the rotation period equals the cohort size.
func RotationPosition(cycleNumber, cohortSize int) int {
	if cohortSize <= 0 {
		return 0
	}
	return cycleNumber % cohortSize
}
