// README: Request/broadcast store; PostgreSQL rows plus Redis dispatch bookkeeping.
package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"hemolink/internal/types"
)

const (
	dispatchKeyPrefix = "broadcast:request:%s:dispatched_at"
	notifiedKeyPrefix = "broadcast:request:%s:notified"
	// TTL for dispatch bookkeeping (requests resolve well within 7 days).
	keyTTL = 7 * 24 * time.Hour
)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redisClient *redis.Client) *Store {
	return &Store{db: db, redis: redisClient}
}

var errRowNotFound = errors.New("row not found")

func (s *Store) GetRequest(ctx context.Context, id types.ID) (*BloodRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, patient_id, type, blood_group, component, quantity_units,
		       urgency, status, lat, lng, created_at
		FROM blood_requests
		WHERE id = $1`, string(id),
	)

	var (
		r        BloodRequest
		lat, lng *float64
	)
	err := row.Scan(
		&r.ID, &r.PatientID, &r.Type, &r.BloodGroup, &r.Component,
		&r.QuantityUnits, &r.Urgency, &r.Status, &lat, &lng, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errRowNotFound
	}
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		r.Coordinates = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &r, nil
}

// InsertBroadcast persists the broadcast record. It must commit before any
// notification is attempted.
func (s *Store) InsertBroadcast(ctx context.Context, b *Broadcast) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO broadcasts (id, request_id, radius_km, matched_count, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(b.ID), string(b.RequestID), b.RadiusKm, b.MatchedCount, b.CreatedAt,
	)
	return err
}

// RecordDispatch records the dispatch timestamp and the set of notified
// donors for a request, so repeat broadcasts skip donors already pinged.
func (s *Store) RecordDispatch(ctx context.Context, requestID types.ID, donorIDs []types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, dispatchedAtKey(requestID), time.Now().UTC().Format(time.RFC3339), keyTTL)
	if len(donorIDs) > 0 {
		members := make([]interface{}, len(donorIDs))
		for i, d := range donorIDs {
			members[i] = string(d)
		}
		pipe.SAdd(ctx, notifiedKey(requestID), members...)
		pipe.Expire(ctx, notifiedKey(requestID), keyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// NotifiedDonors returns the donors already notified for a request.
func (s *Store) NotifiedDonors(ctx context.Context, requestID types.ID) (map[types.ID]struct{}, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(requestID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID]struct{}, len(members))
	for _, m := range members {
		out[types.ID(m)] = struct{}{}
	}
	return out, nil
}

// GetDispatchedAt returns when the request was first dispatched, if ever.
func (s *Store) GetDispatchedAt(ctx context.Context, requestID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func dispatchedAtKey(requestID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(requestID))
}

func notifiedKey(requestID types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(requestID))
}
