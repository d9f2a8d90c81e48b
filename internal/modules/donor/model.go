// README: Donor snapshot model and match results.
package donor

import (
	"time"

	"hemolink/internal/types"
)

// Donor is a read-only snapshot of a donor profile pushed by the
// donor-profile service. The engine never owns or mutates profile fields;
// it only ranks them.
type Donor struct {
	ID                types.ID
	Name              string
	Email             string
	Phone             string
	DeviceToken       string
	BloodGroup        string
	LocationText      string
	Coordinates       *types.Point
	EligibilityStatus string
	LastDonationDate  *time.Time
	DonationCount     *int
}

// Availability selects whether only ready-now donors are returned.
type Availability string

const (
	AvailabilityNow Availability = "now"
	AvailabilityAny Availability = "any"
)

// Match is one ranked search result. DistanceKm is nil when either side has
// no known coordinates; such entries sort after all known distances.
type Match struct {
	Donor      Donor
	DistanceKm *float64
	Ready      bool
	Label      string
}

// SearchQuery is the donor matching contract.
type SearchQuery struct {
	BloodGroup   string
	Origin       *types.Point
	RadiusKm     float64
	Availability Availability
	// Exclude removes specific donors from the result (used when selecting
	// an emergency backup outside a cohort).
	Exclude []types.ID
	Limit   int
}

// CompatibilityPolicy maps a recipient blood group to the donor groups that
// may serve it. The default policy is exact match only; ABO/Rh expansion is
// an explicit opt-in, never a hidden default.
type CompatibilityPolicy func(recipientGroup string) []string

// ExactMatchPolicy returns only the recipient's own group.
func ExactMatchPolicy(recipientGroup string) []string {
	return []string{recipientGroup}
}
