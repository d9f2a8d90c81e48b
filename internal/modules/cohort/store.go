// README: Cohort store backed by PostgreSQL; creation is a single transaction.
package cohort

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hemolink/internal/apperr"
	"hemolink/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// CreateWithMembers inserts the cohort and its ordered memberships in one
// transaction. The partial unique index on active cohorts makes a
// concurrent duplicate surface as apperr.ErrConflict.
func (s *PGStore) CreateWithMembers(ctx context.Context, c *Cohort, donorIDs []types.ID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO cohorts (id, patient_id, name, start_date, active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)`,
		string(c.ID), string(c.PatientID), c.Name, c.StartDate, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.ErrConflict, "active cohort already exists for patient %s", c.PatientID)
		}
		return err
	}

	for order, donorID := range donorIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO cohort_members (cohort_id, donor_id, sequence_order)
			VALUES ($1, $2, $3)`,
			string(c.ID), string(donorID), order,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetActiveByPatient returns the patient's active cohort, or ErrNotFound.
func (s *PGStore) GetActiveByPatient(ctx context.Context, patientID types.ID) (*Cohort, error) {
	return s.scanCohort(s.db.QueryRow(ctx, `
		SELECT id, patient_id, name, start_date, active, created_at
		FROM cohorts
		WHERE patient_id = $1 AND active`, string(patientID),
	))
}

func (s *PGStore) scanCohort(row pgx.Row) (*Cohort, error) {
	var c Cohort
	err := row.Scan(&c.ID, &c.PatientID, &c.Name, &c.StartDate, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Wrap(apperr.ErrNotFound, "cohort")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListMembers returns all memberships ordered by sequence_order.
func (s *PGStore) ListMembers(ctx context.Context, cohortID types.ID) ([]Membership, error) {
	rows, err := s.db.Query(ctx, `
		SELECT cohort_id, donor_id, sequence_order, last_donation_date, next_scheduled_for
		FROM cohort_members
		WHERE cohort_id = $1
		ORDER BY sequence_order`, string(cohortID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var (
			m       Membership
			donorID *string
		)
		if err := rows.Scan(&m.CohortID, &donorID, &m.SequenceOrder, &m.LastDonationDate, &m.NextScheduledFor); err != nil {
			return nil, err
		}
		if donorID != nil {
			id := types.ID(*donorID)
			m.DonorID = &id
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// TouchMemberDonation refreshes the denormalized last_donation_date on a
// slot after a completed cycle.
func (s *PGStore) TouchMemberDonation(ctx context.Context, cohortID types.ID, donorID types.ID, donatedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE cohort_members
		SET last_donation_date = $1
		WHERE cohort_id = $2 AND donor_id = $3`,
		donatedAt, string(cohortID), string(donorID),
	)
	return err
}

// SetMemberNextScheduled records the slot's upcoming assignment.
func (s *PGStore) SetMemberNextScheduled(ctx context.Context, cohortID types.ID, sequenceOrder int, at *time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE cohort_members
		SET next_scheduled_for = $1
		WHERE cohort_id = $2 AND sequence_order = $3`,
		at, string(cohortID), sequenceOrder,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
