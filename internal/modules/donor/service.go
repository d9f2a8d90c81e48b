// README: Donor service; snapshot ingestion and ranked search.
package donor

import (
	"context"

	"github.com/rs/zerolog"

	"hemolink/internal/apperr"
	"hemolink/internal/types"
)

type Service struct {
	store      *Store
	classifier Classifier
	policy     CompatibilityPolicy
	log        zerolog.Logger
}

func NewService(store *Store, classifier Classifier, policy CompatibilityPolicy, log zerolog.Logger) *Service {
	if policy == nil {
		policy = ExactMatchPolicy
	}
	return &Service{store: store, classifier: classifier, policy: policy, log: log}
}

// UpsertSnapshot stores the profile-service snapshot and refreshes the GEO
// index. The GEO refresh is best-effort: the snapshot of record is Postgres.
func (s *Service) UpsertSnapshot(ctx context.Context, d Donor) error {
	if d.ID == "" || d.BloodGroup == "" {
		return apperr.Wrap(apperr.ErrValidation, "donor snapshot requires id and blood_group")
	}
	if err := s.store.Upsert(ctx, d); err != nil {
		return apperr.Wrap(apperr.ErrUpstream, "store donor snapshot: %v", err)
	}
	if err := s.store.UpsertGeo(ctx, d); err != nil {
		s.log.Warn().Err(err).Str("donor_id", string(d.ID)).Msg("geo index refresh failed")
	}
	return nil
}

// Search returns ranked donor candidates. An empty result is a successful
// outcome, never an error.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]Match, error) {
	if q.BloodGroup == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "blood_group is required")
	}
	if q.Availability == "" {
		q.Availability = AvailabilityAny
	}
	candidates, err := s.store.ListByGroups(ctx, s.policy(q.BloodGroup))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "list donors: %v", err)
	}
	return Rank(candidates, q, s.classifier), nil
}

// Nearby reads the GEO index directly: donor ids of a blood group within
// radiusKm, nearest first. This is the low-latency path for live emergency
// dashboards; it reflects only donors with known coordinates, so ranked
// search remains the authoritative matching surface.
func (s *Service) Nearby(ctx context.Context, bloodGroup string, origin types.Point, radiusKm float64) ([]types.ID, error) {
	if bloodGroup == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "blood_group is required")
	}
	ids, err := s.store.NearbyDonorIDs(ctx, bloodGroup, origin, radiusKm)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "geo search: %v", err)
	}
	return ids, nil
}

// ResolveEmails maps donor emails to snapshots for cohort creation. Every
// email must resolve to exactly one known donor.
func (s *Service) ResolveEmails(ctx context.Context, emails []string) ([]Donor, error) {
	donors, err := s.store.ListByEmails(ctx, emails)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "resolve donor emails: %v", err)
	}
	byEmail := make(map[string]Donor, len(donors))
	for _, d := range donors {
		byEmail[d.Email] = d
	}
	resolved := make([]Donor, 0, len(emails))
	for _, email := range emails {
		d, ok := byEmail[email]
		if !ok {
			return nil, apperr.Wrap(apperr.ErrNotFound, "no donor registered for %s", email)
		}
		resolved = append(resolved, d)
	}
	return resolved, nil
}

// Snapshots returns the current snapshot per donor id as a lookup map.
// Unknown ids are simply absent; callers decide whether that matters.
func (s *Service) Snapshots(ctx context.Context, ids []types.ID) (map[types.ID]Donor, error) {
	donors, err := s.store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "list donors by id: %v", err)
	}
	byID := make(map[types.ID]Donor, len(donors))
	for _, d := range donors {
		byID[d.ID] = d
	}
	return byID, nil
}
