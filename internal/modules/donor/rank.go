// README: Pure donor ranking; distance ascending, unknown distance last.
package donor

import (
	"math"
	"sort"

	"hemolink/internal/geo"
	"hemolink/internal/types"
)

// Rank orders candidate donors for a search. It is a pure function over the
// candidate snapshot: no side effects, result is not a live view.
//
//  1. Distance is computed only when both the origin and the donor have
//     coordinates; otherwise it is unknown (nil).
//  2. Candidates with a known distance beyond radiusKm are dropped.
//     Unknown-distance candidates are kept: a missing location must not
//     silently exclude a donor.
//  3. With Availability "now", not-ready donors are dropped.
//  4. Sort ascending by distance (unknown = +Inf, sorts last), ties broken
//     by descending donation count (unknown count = -1, last among ties).
func Rank(candidates []Donor, q SearchQuery, classifier Classifier) []Match {
	excluded := make(map[types.ID]struct{}, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = struct{}{}
	}

	matches := make([]Match, 0, len(candidates))
	for _, d := range candidates {
		if _, skip := excluded[d.ID]; skip {
			continue
		}

		var distance *float64
		if q.Origin != nil && d.Coordinates != nil {
			km := geo.DistanceKm(*q.Origin, *d.Coordinates)
			distance = &km
		}
		if distance != nil && q.RadiusKm > 0 && *distance > q.RadiusKm {
			continue
		}

		cls := classifier.ClassifyDonor(d)
		if q.Availability == AvailabilityNow && !cls.Ready {
			continue
		}

		matches = append(matches, Match{
			Donor:      d,
			DistanceKm: distance,
			Ready:      cls.Ready,
			Label:      cls.Label,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		di, dj := distanceOrInf(matches[i]), distanceOrInf(matches[j])
		if di != dj {
			return di < dj
		}
		return donationCountOrNeg(matches[i]) > donationCountOrNeg(matches[j])
	})

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches
}

func distanceOrInf(m Match) float64 {
	if m.DistanceKm == nil {
		return math.Inf(1)
	}
	return *m.DistanceKm
}

func donationCountOrNeg(m Match) int {
	if m.Donor.DonationCount == nil {
		return -1
	}
	return *m.Donor.DonationCount
}
