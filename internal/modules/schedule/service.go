// README: Transfusion scheduler; cadence planning, booking, lifecycle transitions.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hemolink/internal/apperr"
	"hemolink/internal/config"
	"hemolink/internal/events"
	"hemolink/internal/modules/cohort"
	"hemolink/internal/modules/donor"
	"hemolink/internal/modules/patient"
	"hemolink/internal/types"
)

// Storage is the persistence slice the scheduler needs.
type Storage interface {
	Create(ctx context.Context, sc *Schedule) error
	Get(ctx context.Context, id types.ID) (*Schedule, error)
	GetActiveByPatient(ctx context.Context, patientID types.ID) (*Schedule, error)
	MaxCycle(ctx context.Context, patientID types.ID) (int, bool, error)
	LastScheduledFor(ctx context.Context, patientID types.ID) (*time.Time, error)
	Book(ctx context.Context, id types.ID, version int, hospitalID types.ID, at time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListByPatient(ctx context.Context, patientID types.ID) ([]View, error)
	History(ctx context.Context, patientID types.ID, limit int) ([]View, error)
}

// CohortSource is the rotation surface the scheduler plans against.
type CohortSource interface {
	ActiveCohort(ctx context.Context, patientID types.ID) (*cohort.Cohort, error)
	ResolveRotationDonor(ctx context.Context, cohortID types.ID, cycleNumber int) (*cohort.Membership, error)
	MemberIDs(ctx context.Context, cohortID types.ID) ([]types.ID, error)
	MarkDonation(ctx context.Context, cohortID, donorID types.ID, donatedAt time.Time) error
	NoteUpcomingAssignment(ctx context.Context, cohortID types.ID, sequenceOrder int, at *time.Time)
	CohortSize() int
}

// DonorSearcher selects emergency backups outside the cohort.
type DonorSearcher interface {
	Search(ctx context.Context, q donor.SearchQuery) ([]donor.Match, error)
}

// PatientSource resolves the patient snapshot that parameterises backup
// selection.
type PatientSource interface {
	Get(ctx context.Context, id types.ID) (*patient.Patient, error)
}

// HospitalChecker verifies a booking target exists.
type HospitalChecker interface {
	Exists(ctx context.Context, id types.ID) (bool, error)
}

type Service struct {
	store     Storage
	cohorts   CohortSource
	donors    DonorSearcher
	patients  PatientSource
	hospitals HospitalChecker
	cfg       config.RotationConfig
	radiusKm  float64
	events    *events.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(
	store Storage,
	cohorts CohortSource,
	donors DonorSearcher,
	patients PatientSource,
	hospitals HospitalChecker,
	cfg config.RotationConfig,
	backupRadiusKm float64,
	publisher *events.Publisher,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:     store,
		cohorts:   cohorts,
		donors:    donors,
		patients:  patients,
		hospitals: hospitals,
		cfg:       cfg,
		radiusKm:  backupRadiusKm,
		events:    publisher,
		log:       log,
		now:       time.Now,
	}
}

// PlanNext plans the patient's next cycle. It is idempotent: an existing
// planned or booked schedule is returned unchanged, whether found up front
// or via a storage conflict from a concurrent plan.
func (s *Service) PlanNext(ctx context.Context, patientID types.ID, component string, units int) (*Schedule, error) {
	if patientID == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "patient_id is required")
	}
	if units <= 0 {
		units = 1
	}

	existing, err := s.store.GetActiveByPatient(ctx, patientID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Wrap(apperr.ErrUpstream, "load active schedule: %v", err)
	}

	c, err := s.cohorts.ActiveCohort(ctx, patientID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Wrap(apperr.ErrPreconditionFailed, "patient %s has no active cohort", patientID)
		}
		return nil, apperr.Wrap(apperr.ErrUpstream, "load cohort: %v", err)
	}

	maxCycle, any, err := s.store.MaxCycle(ctx, patientID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "resolve cycle: %v", err)
	}
	cycle := 0
	if any {
		cycle = maxCycle + 1
	}

	assigned, usedBackup, err := s.assignDonor(ctx, c, cycle)
	if err != nil {
		return nil, err
	}

	last, err := s.store.LastScheduledFor(ctx, patientID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "load previous cycle: %v", err)
	}
	scheduledFor := nextScheduledFor(c.StartDate, last, s.cfg.CadenceDays)

	sc := &Schedule{
		ID:                  types.ID(uuid.NewString()),
		PatientID:           patientID,
		CohortID:            c.ID,
		CycleNumber:         cycle,
		ScheduledFor:        &scheduledFor,
		Status:              StatusPlanned,
		Component:           component,
		Units:               units,
		AssignedDonorID:     assigned,
		UsedEmergencyBackup: usedBackup,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.store.Create(ctx, sc); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// A concurrent plan won; converge on its row.
			winner, readErr := s.store.GetActiveByPatient(ctx, patientID)
			if readErr == nil {
				return winner, nil
			}
			return nil, err
		}
		return nil, apperr.Wrap(apperr.ErrUpstream, "persist schedule: %v", err)
	}

	if assigned != nil && !usedBackup {
		s.cohorts.NoteUpcomingAssignment(ctx, c.ID, cohort.RotationPosition(cycle, s.cohorts.CohortSize()), &scheduledFor)
	}
	s.appendEvent(ctx, sc.ID, "", StatusPlanned, nil)
	s.events.Publish(ctx, events.Event{Type: events.ScheduleChanged, PatientID: patientID, EntityID: sc.ID})
	return sc, nil
}

// assignDonor resolves the rotation member for a cycle, falling back to an
// emergency backup outside the cohort when the member is not ready. No
// eligible backup leaves the slot unassigned rather than flagging a backup
// that does not exist.
func (s *Service) assignDonor(ctx context.Context, c *cohort.Cohort, cycle int) (*types.ID, bool, error) {
	slot, err := s.cohorts.ResolveRotationDonor(ctx, c.ID, cycle)
	if err == nil {
		return slot.DonorID, false, nil
	}
	if !errors.Is(err, cohort.ErrRequiresBackup) {
		return nil, false, err
	}

	p, err := s.patients.Get(ctx, c.PatientID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Warn().Str("patient_id", string(c.PatientID)).Msg("no patient snapshot, planning without backup")
			return nil, false, nil
		}
		return nil, false, apperr.Wrap(apperr.ErrUpstream, "load patient: %v", err)
	}

	memberIDs, err := s.cohorts.MemberIDs(ctx, c.ID)
	if err != nil {
		return nil, false, err
	}
	matches, err := s.donors.Search(ctx, donor.SearchQuery{
		BloodGroup:   p.BloodGroup,
		Origin:       p.Coordinates,
		RadiusKm:     s.radiusKm,
		Availability: donor.AvailabilityNow,
		Exclude:      memberIDs,
		Limit:        1,
	})
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	id := matches[0].Donor.ID
	return &id, true, nil
}

// Book pins a planned schedule to a hospital and a concrete time. The
// caller chooses hospital and time together, so the supplied timestamp
// replaces the planned one outright.
func (s *Service) Book(ctx context.Context, scheduleID, hospitalID types.ID, at time.Time) (*Schedule, error) {
	if hospitalID == "" || at.IsZero() {
		return nil, apperr.Wrap(apperr.ErrValidation, "hospital_id and scheduled_for are required")
	}
	sc, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sc.Status != StatusPlanned {
		return nil, apperr.Wrap(apperr.ErrPreconditionFailed, "schedule %s is %s, not planned", sc.ID, sc.Status)
	}
	ok, err := s.hospitals.Exists(ctx, hospitalID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "verify hospital: %v", err)
	}
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "hospital %s", hospitalID)
	}

	updated, err := s.store.Book(ctx, sc.ID, sc.StatusVersion, hospitalID, at)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "book schedule: %v", err)
	}
	if !updated {
		return nil, apperr.Wrap(apperr.ErrConflict, "schedule %s changed concurrently", sc.ID)
	}

	if sc.AssignedDonorID != nil && !sc.UsedEmergencyBackup {
		s.cohorts.NoteUpcomingAssignment(ctx, sc.CohortID, cohort.RotationPosition(sc.CycleNumber, s.cohorts.CohortSize()), &at)
	}
	s.appendEvent(ctx, sc.ID, StatusPlanned, StatusBooked, nil)
	s.events.Publish(ctx, events.Event{Type: events.ScheduleChanged, PatientID: sc.PatientID, EntityID: sc.ID})
	return s.store.Get(ctx, sc.ID)
}

// Complete is the confirmation hook: booked → completed, refreshing the
// cohort's denormalized donation cache when a member donated.
func (s *Service) Complete(ctx context.Context, scheduleID types.ID) (*Schedule, error) {
	return s.transition(ctx, scheduleID, StatusCompleted, func(sc *Schedule) {
		if sc.AssignedDonorID == nil || sc.UsedEmergencyBackup {
			return
		}
		donatedAt := s.now().UTC()
		if sc.ScheduledFor != nil {
			donatedAt = *sc.ScheduledFor
		}
		if err := s.cohorts.MarkDonation(ctx, sc.CohortID, *sc.AssignedDonorID, donatedAt); err != nil {
			s.log.Warn().Err(err).Str("schedule_id", string(sc.ID)).Msg("donation cache refresh failed")
		}
		s.cohorts.NoteUpcomingAssignment(ctx, sc.CohortID, cohort.RotationPosition(sc.CycleNumber, s.cohorts.CohortSize()), nil)
	})
}

// Cancel voids a planned or booked schedule.
func (s *Service) Cancel(ctx context.Context, scheduleID types.ID) (*Schedule, error) {
	return s.transition(ctx, scheduleID, StatusCancelled, nil)
}

func (s *Service) transition(ctx context.Context, scheduleID types.ID, to Status, after func(*Schedule)) (*Schedule, error) {
	sc, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(sc.Status, to) {
		return nil, apperr.Wrap(apperr.ErrPreconditionFailed, "schedule %s cannot move from %s to %s", sc.ID, sc.Status, to)
	}
	updated, err := s.store.UpdateStatus(ctx, sc.ID, sc.Status, to, sc.StatusVersion)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "update schedule: %v", err)
	}
	if !updated {
		return nil, apperr.Wrap(apperr.ErrConflict, "schedule %s changed concurrently", sc.ID)
	}
	if after != nil {
		after(sc)
	}
	s.appendEvent(ctx, sc.ID, sc.Status, to, nil)
	s.events.Publish(ctx, events.Event{Type: events.ScheduleChanged, PatientID: sc.PatientID, EntityID: sc.ID})
	return s.store.Get(ctx, sc.ID)
}

// List returns the patient's full schedule, newest first.
func (s *Service) List(ctx context.Context, patientID types.ID) ([]View, error) {
	views, err := s.store.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "list schedules: %v", err)
	}
	return views, nil
}

// History returns completed cycles, newest first.
func (s *Service) History(ctx context.Context, patientID types.ID, limit int) ([]View, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	views, err := s.store.History(ctx, patientID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "list history: %v", err)
	}
	return views, nil
}

// NextPlannedFor implements the cohort details lookup: the scheduled time
// of the patient's planned or booked cycle, nil when none exists.
func (s *Service) NextPlannedFor(ctx context.Context, patientID types.ID) (*time.Time, error) {
	sc, err := s.store.GetActiveByPatient(ctx, patientID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sc.ScheduledFor, nil
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actorID *types.ID) {
	err := s.store.AppendEvent(ctx, &Event{
		ScheduleID: id,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("schedule_id", string(id)).Msg("audit event append failed")
	}
}

// nextScheduledFor anchors the next cycle at the later of the cohort start
// and the previous cycle's time, plus the cadence.
func nextScheduledFor(startDate time.Time, previous *time.Time, cadenceDays int) time.Time {
	base := startDate
	if previous != nil && previous.After(base) {
		base = *previous
	}
	return base.AddDate(0, 0, cadenceDays)
}
