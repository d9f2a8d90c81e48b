// README: Patient service; snapshot ingestion and lookups.
package patient

import (
	"context"

	"hemolink/internal/apperr"
	"hemolink/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// UpsertSnapshot stores the profile-service snapshot.
func (s *Service) UpsertSnapshot(ctx context.Context, p Patient) error {
	if p.ID == "" {
		return apperr.Wrap(apperr.ErrValidation, "patient snapshot requires id")
	}
	if err := s.store.Upsert(ctx, p); err != nil {
		return apperr.Wrap(apperr.ErrUpstream, "store patient snapshot: %v", err)
	}
	return nil
}

// Get returns the current snapshot for a patient.
func (s *Service) Get(ctx context.Context, id types.ID) (*Patient, error) {
	return s.store.Get(ctx, id)
}
