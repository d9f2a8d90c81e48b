// README: Patient snapshot store backed by PostgreSQL.
package patient

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hemolink/internal/apperr"
	"hemolink/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Upsert replaces the stored snapshot for a patient.
func (s *Store) Upsert(ctx context.Context, p Patient) error {
	var lat, lng *float64
	if p.Coordinates != nil {
		lat, lng = &p.Coordinates.Lat, &p.Coordinates.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO patients (
			id, name, phone, blood_group, component, location_text, lat, lng, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			blood_group = EXCLUDED.blood_group,
			component = EXCLUDED.component,
			location_text = EXCLUDED.location_text,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			updated_at = NOW()`,
		string(p.ID), p.Name, p.Phone, p.BloodGroup, p.Component,
		p.LocationText, lat, lng,
	)
	return err
}

// Get returns the patient snapshot, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id types.ID) (*Patient, error) {
	var (
		p        Patient
		lat, lng *float64
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, name, phone, blood_group, component, location_text, lat, lng, updated_at
		FROM patients
		WHERE id = $1`, string(id),
	).Scan(&p.ID, &p.Name, &p.Phone, &p.BloodGroup, &p.Component, &p.LocationText, &lat, &lng, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Wrap(apperr.ErrNotFound, "patient %s", id)
	}
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		p.Coordinates = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &p, nil
}
