// README: Hospital/blood-bank registry model and match results.
package hospital

import (
	"hemolink/internal/types"
)

// Hospital is read-side registry data maintained by the hospital onboarding
// flow; the engine only ranks it.
type Hospital struct {
	ID          types.ID
	Name        string
	Address     string
	Contact     string
	Verified    bool
	Coordinates *types.Point
}

// Stock is one per-component stock level at a hospital. FreshnessDays is the
// age of the oldest-usable unit batch since collection.
type Stock struct {
	HospitalID    types.ID
	BloodGroup    string
	Component     string
	Units         int
	FreshnessDays int
}

// Candidate pairs a hospital with one matching stock row for ranking.
type Candidate struct {
	Hospital Hospital
	Stock    Stock
}

type Compatibility string

const (
	// CompatibilityPerfect: both blood group and component were specified
	// by the caller and matched exactly.
	CompatibilityPerfect Compatibility = "perfect"
	CompatibilityGood    Compatibility = "good"
)

// SortMode selects the caller's ranking preference.
type SortMode string

const (
	SortByUnits     SortMode = "units"     // units desc
	SortByFreshness SortMode = "freshness" // freshness asc, ties units desc
	SortByDistance  SortMode = "distance"  // distance asc, ties units desc
)

// Match is one ranked hospital result.
type Match struct {
	Hospital      Hospital
	Units         int
	FreshnessDays int
	DistanceKm    *float64
	Compatibility Compatibility
}

// MatchQuery is the hospital matching contract. BloodGroup and Component are
// optional; LocationText is geocoded when no patient coordinate is supplied.
type MatchQuery struct {
	BloodGroup   string
	Component    string
	LocationText string
	Urgency      string
	Origin       *types.Point
	RadiusKm     float64
	MinUnits     int
	Sort         SortMode
}
