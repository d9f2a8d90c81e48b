// README: Hospital matching service; geocodes free-text locations when needed.
package hospital

import (
	"context"

	"github.com/rs/zerolog"

	"hemolink/internal/apperr"
	"hemolink/internal/config"
	"hemolink/internal/infra"
)

type Service struct {
	store    *Store
	geocoder infra.Geocoder
	cfg      config.MatchingConfig
	log      zerolog.Logger
}

// NewService accepts a nil geocoder; matching then degrades to unknown
// distance for callers that only supply a free-text location.
func NewService(store *Store, geocoder infra.Geocoder, cfg config.MatchingConfig, log zerolog.Logger) *Service {
	return &Service{store: store, geocoder: geocoder, cfg: cfg, log: log}
}

// Match returns ranked hospitals for a component/blood-group query. Empty
// results are a valid outcome.
func (s *Service) Match(ctx context.Context, q MatchQuery) ([]Match, error) {
	if q.MinUnits < 0 {
		return nil, apperr.Wrap(apperr.ErrValidation, "min_units must not be negative")
	}
	if q.Sort == "" {
		q.Sort = defaultSort(q.Urgency)
	}

	// A free-text location only matters when the caller has no coordinate.
	// Geocoding failures degrade ranking, they never fail the search.
	if q.Origin == nil && q.LocationText != "" && s.geocoder != nil {
		point, ok, err := s.geocoder.Geocode(ctx, q.LocationText)
		if err != nil {
			s.log.Warn().Err(err).Str("location", q.LocationText).Msg("geocode failed; distance unknown")
		} else if ok {
			q.Origin = &point
		}
	}

	candidates, err := s.store.ListCandidates(ctx, q.BloodGroup, q.Component)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "list hospitals: %v", err)
	}
	return Rank(candidates, q, s.shelfLifeDays), nil
}

// shelfLifeDays looks up the configured shelf life per component; unknown
// components fall back to the whole-blood limit.
func (s *Service) shelfLifeDays(component string) int {
	if days, ok := s.cfg.ShelfLifeDays[component]; ok {
		return days
	}
	if days, ok := s.cfg.ShelfLifeDays["whole_blood"]; ok {
		return days
	}
	return 35
}

// defaultSort: urgent requests care about travel time, routine ones about
// available volume.
func defaultSort(urgency string) SortMode {
	switch urgency {
	case "critical", "high":
		return SortByDistance
	default:
		return SortByUnits
	}
}
