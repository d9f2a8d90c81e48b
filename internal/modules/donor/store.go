// README: Donor snapshot store backed by PostgreSQL plus a Redis GEO index.
package donor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"hemolink/internal/types"
)

const geoKeyPrefix = "donors:geo:%s"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redisClient *redis.Client) *Store {
	return &Store{db: db, redis: redisClient}
}

const donorColumns = `
	id, name, email, phone, device_token, blood_group, location_text,
	lat, lng, eligibility_status, last_donation_date, donation_count`

// Upsert replaces the stored snapshot for a donor.
func (s *Store) Upsert(ctx context.Context, d Donor) error {
	var lat, lng *float64
	if d.Coordinates != nil {
		lat, lng = &d.Coordinates.Lat, &d.Coordinates.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO donors (
			id, name, email, phone, device_token, blood_group, location_text,
			lat, lng, eligibility_status, last_donation_date, donation_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			device_token = EXCLUDED.device_token,
			blood_group = EXCLUDED.blood_group,
			location_text = EXCLUDED.location_text,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			eligibility_status = EXCLUDED.eligibility_status,
			last_donation_date = EXCLUDED.last_donation_date,
			donation_count = EXCLUDED.donation_count,
			updated_at = NOW()`,
		string(d.ID), d.Name, d.Email, d.Phone, d.DeviceToken, d.BloodGroup,
		d.LocationText, lat, lng, d.EligibilityStatus, d.LastDonationDate,
		d.DonationCount,
	)
	return err
}

// UpsertGeo keeps the per-blood-group GEO index in step with the snapshot.
// A snapshot without coordinates removes the donor from the index.
func (s *Store) UpsertGeo(ctx context.Context, d Donor) error {
	key := geoKey(d.BloodGroup)
	if d.Coordinates == nil {
		return s.redis.ZRem(ctx, key, string(d.ID)).Err()
	}
	return s.redis.GeoAdd(ctx, key, &redis.GeoLocation{
		Name:      string(d.ID),
		Longitude: d.Coordinates.Lng,
		Latitude:  d.Coordinates.Lat,
	}).Err()
}

// NearbyDonorIDs queries the GEO index for donors of a blood group within
// radiusKm of a point, nearest first. Used as a broadcast pre-filter; the
// authoritative ranking always runs over the Postgres snapshot.
func (s *Store) NearbyDonorIDs(ctx context.Context, bloodGroup string, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, geoKey(bloodGroup), &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// ListByGroups returns all donor snapshots whose blood group is in groups.
func (s *Store) ListByGroups(ctx context.Context, groups []string) ([]Donor, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+donorColumns+`
		FROM donors
		WHERE blood_group = ANY($1)`, groups,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDonors(rows)
}

// ListByIDs returns snapshots for the given donors, preserving no order.
func (s *Store) ListByIDs(ctx context.Context, ids []types.ID) ([]Donor, error) {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT`+donorColumns+`
		FROM donors
		WHERE id = ANY($1)`, strs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDonors(rows)
}

// ListByEmails resolves donor emails to snapshots, as cohort creation is
// email-addressed by the patient UI.
func (s *Store) ListByEmails(ctx context.Context, emails []string) ([]Donor, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+donorColumns+`
		FROM donors
		WHERE email = ANY($1)`, emails,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDonors(rows)
}

func scanDonors(rows pgx.Rows) ([]Donor, error) {
	var donors []Donor
	for rows.Next() {
		var (
			d            Donor
			lat, lng     *float64
			lastDonation *time.Time
			count        *int
		)
		if err := rows.Scan(
			&d.ID, &d.Name, &d.Email, &d.Phone, &d.DeviceToken, &d.BloodGroup,
			&d.LocationText, &lat, &lng, &d.EligibilityStatus, &lastDonation,
			&count,
		); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			d.Coordinates = &types.Point{Lat: *lat, Lng: *lng}
		}
		d.LastDonationDate = lastDonation
		d.DonationCount = count
		donors = append(donors, d)
	}
	return donors, rows.Err()
}

func geoKey(bloodGroup string) string {
	return fmt.Sprintf(geoKeyPrefix, bloodGroup)
}
