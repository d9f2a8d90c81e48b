// README: Schedule store backed by PostgreSQL; idempotency lives in the indexes.
package schedule

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

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const scheduleColumns = `
	id, patient_id, cohort_id, cycle_number, scheduled_for, status,
	status_version, component, units, hospital_id, assigned_donor_id,
	used_emergency_backup, created_at, booked_at, completed_at, cancelled_at`

// Create inserts a schedule row. The partial unique index on non-terminal
// rows per patient makes a concurrent duplicate plan surface as
// apperr.ErrConflict.
func (s *Store) Create(ctx context.Context, sc *Schedule) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transfusion_schedules (
			id, patient_id, cohort_id, cycle_number, scheduled_for, status,
			status_version, component, units, hospital_id, assigned_donor_id,
			used_emergency_backup, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(sc.ID), string(sc.PatientID), string(sc.CohortID), sc.CycleNumber,
		sc.ScheduledFor, string(sc.Status), sc.StatusVersion, sc.Component,
		sc.Units, toStringPtr(sc.HospitalID), toStringPtr(sc.AssignedDonorID),
		sc.UsedEmergencyBackup, sc.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Wrap(apperr.ErrConflict, "active schedule already exists for patient %s", sc.PatientID)
		}
		return err
	}
	return nil
}

// Get returns a schedule by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id types.ID) (*Schedule, error) {
	return s.scanSchedule(s.db.QueryRow(ctx, `
		SELECT`+scheduleColumns+`
		FROM transfusion_schedules
		WHERE id = $1`, string(id),
	))
}

// GetActiveByPatient returns the patient's planned or booked schedule, or
// ErrNotFound. The partial unique index guarantees at most one exists.
func (s *Store) GetActiveByPatient(ctx context.Context, patientID types.ID) (*Schedule, error) {
	return s.scanSchedule(s.db.QueryRow(ctx, `
		SELECT`+scheduleColumns+`
		FROM transfusion_schedules
		WHERE patient_id = $1 AND status IN ('planned', 'booked')`, string(patientID),
	))
}

// MaxCycle returns the highest cycle number ever planned for a patient, and
// whether any cycle exists.
func (s *Store) MaxCycle(ctx context.Context, patientID types.ID) (int, bool, error) {
	var max *int
	err := s.db.QueryRow(ctx, `
		SELECT MAX(cycle_number)
		FROM transfusion_schedules
		WHERE patient_id = $1`, string(patientID),
	).Scan(&max)
	if err != nil {
		return 0, false, err
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

// LastScheduledFor returns the scheduled_for of the patient's most recent
// cycle that carries one, regardless of status.
func (s *Store) LastScheduledFor(ctx context.Context, patientID types.ID) (*time.Time, error) {
	var at *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT scheduled_for
		FROM transfusion_schedules
		WHERE patient_id = $1 AND scheduled_for IS NOT NULL
		ORDER BY cycle_number DESC
		LIMIT 1`, string(patientID),
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return at, nil
}

// Book transitions planned → booked, overwriting hospital and time. The
// status/version guard makes concurrent bookings lose cleanly.
func (s *Store) Book(ctx context.Context, id types.ID, version int, hospitalID types.ID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE transfusion_schedules
		SET status = 'booked',
		    status_version = status_version + 1,
		    hospital_id = $1,
		    scheduled_for = $2,
		    booked_at = NOW()
		WHERE id = $3 AND status = 'planned' AND status_version = $4`,
		string(hospitalID), at, string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus applies an optimistic transition, stamping the matching
// lifecycle timestamp.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE transfusion_schedules
		SET status = $1,
		    status_version = status_version + 1,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AppendEvent records one transition in the audit trail.
func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO schedule_events (schedule_id, from_status, to_status, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(e.ScheduleID), string(e.FromStatus), string(e.ToStatus),
		toStringPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

// ListByPatient returns all schedule rows for a patient, newest first, each
// joined with donor and hospital name snapshots.
func (s *Store) ListByPatient(ctx context.Context, patientID types.ID) ([]View, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+viewColumns+`
		FROM transfusion_schedules ts
		LEFT JOIN donors d ON d.id = ts.assigned_donor_id
		LEFT JOIN hospitals h ON h.id = ts.hospital_id
		WHERE ts.patient_id = $1
		ORDER BY ts.scheduled_for DESC NULLS LAST, ts.cycle_number DESC`, string(patientID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanViews(rows)
}

// History returns completed cycles, newest first, capped at limit.
func (s *Store) History(ctx context.Context, patientID types.ID, limit int) ([]View, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+viewColumns+`
		FROM transfusion_schedules ts
		LEFT JOIN donors d ON d.id = ts.assigned_donor_id
		LEFT JOIN hospitals h ON h.id = ts.hospital_id
		WHERE ts.patient_id = $1 AND ts.status = 'completed'
		ORDER BY ts.scheduled_for DESC NULLS LAST, ts.cycle_number DESC
		LIMIT $2`, string(patientID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanViews(rows)
}

const viewColumns = `
	ts.id, ts.patient_id, ts.cohort_id, ts.cycle_number, ts.scheduled_for,
	ts.status, ts.status_version, ts.component, ts.units, ts.hospital_id,
	ts.assigned_donor_id, ts.used_emergency_backup, ts.created_at,
	ts.booked_at, ts.completed_at, ts.cancelled_at,
	COALESCE(d.name, ''), COALESCE(h.name, '')`

func (s *Store) scanSchedule(row pgx.Row) (*Schedule, error) {
	var (
		sc                  Schedule
		hospitalID, donorID *string
	)
	err := row.Scan(
		&sc.ID, &sc.PatientID, &sc.CohortID, &sc.CycleNumber, &sc.ScheduledFor,
		&sc.Status, &sc.StatusVersion, &sc.Component, &sc.Units, &hospitalID,
		&donorID, &sc.UsedEmergencyBackup, &sc.CreatedAt, &sc.BookedAt,
		&sc.CompletedAt, &sc.CancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Wrap(apperr.ErrNotFound, "schedule")
	}
	if err != nil {
		return nil, err
	}
	sc.HospitalID = toIDPtr(hospitalID)
	sc.AssignedDonorID = toIDPtr(donorID)
	return &sc, nil
}

func scanViews(rows pgx.Rows) ([]View, error) {
	var views []View
	for rows.Next() {
		var (
			v                   View
			hospitalID, donorID *string
		)
		if err := rows.Scan(
			&v.ID, &v.PatientID, &v.CohortID, &v.CycleNumber, &v.ScheduledFor,
			&v.Status, &v.StatusVersion, &v.Component, &v.Units, &hospitalID,
			&donorID, &v.UsedEmergencyBackup, &v.CreatedAt, &v.BookedAt,
			&v.CompletedAt, &v.CancelledAt, &v.DonorName, &v.HospitalName,
		); err != nil {
			return nil, err
		}
		v.HospitalID = toIDPtr(hospitalID)
		v.AssignedDonorID = toIDPtr(donorID)
		views = append(views, v)
	}
	return views, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
