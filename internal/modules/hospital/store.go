// README: Hospital registry store backed by PostgreSQL.
package hospital

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"hemolink/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ListCandidates returns verified hospitals joined with stock rows that
// match the optional blood group / component filters. Unit, freshness and
// radius filtering happen in Rank so the rules live in one place.
func (s *Store) ListCandidates(ctx context.Context, bloodGroup, component string) ([]Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT h.id, h.name, h.address, h.contact, h.verified, h.lat, h.lng,
		       st.blood_group, st.component, st.units, st.freshness_days
		FROM hospitals h
		JOIN hospital_stock st ON st.hospital_id = h.id
		WHERE h.verified
		  AND ($1 = '' OR st.blood_group = $1)
		  AND ($2 = '' OR st.component = $2)`,
		bloodGroup, component,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			c        Candidate
			lat, lng *float64
		)
		if err := rows.Scan(
			&c.Hospital.ID, &c.Hospital.Name, &c.Hospital.Address,
			&c.Hospital.Contact, &c.Hospital.Verified, &lat, &lng,
			&c.Stock.BloodGroup, &c.Stock.Component, &c.Stock.Units,
			&c.Stock.FreshnessDays,
		); err != nil {
			return nil, err
		}
		c.Stock.HospitalID = c.Hospital.ID
		if lat != nil && lng != nil {
			c.Hospital.Coordinates = &types.Point{Lat: *lat, Lng: *lng}
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// Exists reports whether a hospital id is registered.
func (s *Store) Exists(ctx context.Context, id types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM hospitals WHERE id = $1)`, string(id),
	).Scan(&exists)
	return exists, err
}
