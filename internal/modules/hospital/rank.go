// README: Pure hospital ranking; shelf-life exclusion is a hard filter.
package hospital

import (
	"math"
	"sort"

	"hemolink/internal/geo"
)

// Rank filters and orders hospital candidates. shelfLifeDays bounds the
// acceptable freshness per component: a unit past its shelf life is never a
// valid match, even when nothing else matches. Pure function, no side
// effects.
func Rank(candidates []Candidate, q MatchQuery, shelfLifeDays func(component string) int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if !c.Hospital.Verified {
			continue
		}
		if c.Stock.Units < q.MinUnits {
			continue
		}
		if c.Stock.FreshnessDays > shelfLifeDays(c.Stock.Component) {
			continue
		}

		var distance *float64
		if q.Origin != nil && c.Hospital.Coordinates != nil {
			km := geo.DistanceKm(*q.Origin, *c.Hospital.Coordinates)
			distance = &km
		}
		if distance != nil && q.RadiusKm > 0 && *distance > q.RadiusKm {
			continue
		}

		matches = append(matches, Match{
			Hospital:      c.Hospital,
			Units:         c.Stock.Units,
			FreshnessDays: c.Stock.FreshnessDays,
			DistanceKm:    distance,
			Compatibility: classifyCompatibility(q, c.Stock),
		})
	}

	sortMatches(matches, q.Sort)
	return matches
}

// classifyCompatibility is perfect only when the caller pinned both blood
// group and component and the stock row matches both exactly.
func classifyCompatibility(q MatchQuery, s Stock) Compatibility {
	if q.BloodGroup != "" && q.Component != "" &&
		s.BloodGroup == q.BloodGroup && s.Component == q.Component {
		return CompatibilityPerfect
	}
	return CompatibilityGood
}

func sortMatches(matches []Match, mode SortMode) {
	switch mode {
	case SortByFreshness:
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].FreshnessDays != matches[j].FreshnessDays {
				return matches[i].FreshnessDays < matches[j].FreshnessDays
			}
			return matches[i].Units > matches[j].Units
		})
	case SortByDistance:
		sort.SliceStable(matches, func(i, j int) bool {
			di, dj := distanceOrInf(matches[i]), distanceOrInf(matches[j])
			if di != dj {
				return di < dj
			}
			return matches[i].Units > matches[j].Units
		})
	default: // SortByUnits
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Units > matches[j].Units
		})
	}
}

func distanceOrInf(m Match) float64 {
	if m.DistanceKm == nil {
		return math.Inf(1)
	}
	return *m.DistanceKm
}
