// README: Cohort manager; creation, details, rotation-order resolution.
package cohort

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hemolink/internal/apperr"
	"hemolink/internal/config"
	"hemolink/internal/events"
	"hemolink/internal/modules/donor"
	"hemolink/internal/types"
)

// ErrRequiresBackup signals that the rotation-designated member is not ready
// for the cycle. The manager never substitutes silently; backup selection is
// the scheduler's policy.
var ErrRequiresBackup = errors.New("rotation donor requires backup")

// Store is the persistence surface the manager needs.
type Store interface {
	CreateWithMembers(ctx context.Context, c *Cohort, donorIDs []types.ID) error
	GetActiveByPatient(ctx context.Context, patientID types.ID) (*Cohort, error)
	ListMembers(ctx context.Context, cohortID types.ID) ([]Membership, error)
	TouchMemberDonation(ctx context.Context, cohortID, donorID types.ID, donatedAt time.Time) error
	SetMemberNextScheduled(ctx context.Context, cohortID types.ID, sequenceOrder int, at *time.Time) error
}

// DonorDirectory resolves donor snapshots for membership views and
// readiness checks.
type DonorDirectory interface {
	Snapshots(ctx context.Context, ids []types.ID) (map[types.ID]donor.Donor, error)
}

// NextTransfusionSource reads the patient's next planned/booked slot. It is
// an interface to keep the schedule module's types out of this package (the
// scheduler already depends on the manager).
type NextTransfusionSource interface {
	NextPlannedFor(ctx context.Context, patientID types.ID) (*time.Time, error)
}

type Manager struct {
	store      Store
	donors     DonorDirectory
	schedules  NextTransfusionSource
	classifier donor.Classifier
	cfg        config.RotationConfig
	events     *events.Publisher
	log        zerolog.Logger
}

func NewManager(store Store, donors DonorDirectory, classifier donor.Classifier, cfg config.RotationConfig, publisher *events.Publisher, log zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		donors:     donors,
		classifier: classifier,
		cfg:        cfg,
		events:     publisher,
		log:        log,
	}
}

// SetScheduleSource wires the schedule reader after construction; the
// scheduler and the manager reference each other, so one side binds late.
func (m *Manager) SetScheduleSource(src NextTransfusionSource) {
	m.schedules = src
}

// CohortSize exposes the configured rotation size to the scheduler.
func (m *Manager) CohortSize() int {
	return m.cfg.CohortSize
}

type CreateCommand struct {
	PatientID types.ID
	Name      string
	DonorIDs  []types.ID
	StartDate time.Time
}

// Create validates the donor set and creates the cohort with its ordered
// slots in one transaction. A concurrent duplicate converges on the already
// created cohort instead of surfacing the conflict.
func (m *Manager) Create(ctx context.Context, cmd CreateCommand) (*Cohort, error) {
	if cmd.PatientID == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "patient_id is required")
	}
	if len(cmd.DonorIDs) != m.cfg.CohortSize {
		return nil, apperr.Wrap(apperr.ErrValidation, "exactly %d donors required, got %d", m.cfg.CohortSize, len(cmd.DonorIDs))
	}
	seen := make(map[types.ID]struct{}, len(cmd.DonorIDs))
	for _, id := range cmd.DonorIDs {
		if id == "" {
			return nil, apperr.Wrap(apperr.ErrValidation, "donor identifiers must not be empty")
		}
		if _, dup := seen[id]; dup {
			return nil, apperr.Wrap(apperr.ErrValidation, "duplicate donor %s", id)
		}
		seen[id] = struct{}{}
	}

	if _, err := m.store.GetActiveByPatient(ctx, cmd.PatientID); err == nil {
		return nil, apperr.Wrap(apperr.ErrValidation, "patient %s already has an active cohort", cmd.PatientID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Wrap(apperr.ErrUpstream, "check active cohort: %v", err)
	}

	startDate := cmd.StartDate
	if startDate.IsZero() {
		startDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	c := &Cohort{
		ID:        types.ID(uuid.NewString()),
		PatientID: cmd.PatientID,
		Name:      cmd.Name,
		StartDate: startDate,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateWithMembers(ctx, c, cmd.DonorIDs); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// Lost a creation race; the winner's cohort is the answer.
			existing, readErr := m.store.GetActiveByPatient(ctx, cmd.PatientID)
			if readErr == nil {
				return existing, nil
			}
			return nil, err
		}
		return nil, apperr.Wrap(apperr.ErrUpstream, "create cohort: %v", err)
	}

	m.events.Publish(ctx, events.Event{Type: events.CohortChanged, PatientID: cmd.PatientID, EntityID: c.ID})
	return c, nil
}

// GetDetails returns the membership views in rotation order plus the next
// planned transfusion. A patient without a cohort gets empty details, not
// an error.
func (m *Manager) GetDetails(ctx context.Context, patientID types.ID) (*Details, error) {
	c, err := m.store.GetActiveByPatient(ctx, patientID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &Details{Members: []MemberView{}}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "load cohort: %v", err)
	}

	members, err := m.store.ListMembers(ctx, c.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "load members: %v", err)
	}

	ids := make([]types.ID, 0, len(members))
	for _, mem := range members {
		if mem.DonorID != nil {
			ids = append(ids, *mem.DonorID)
		}
	}
	snapshots, err := m.donors.Snapshots(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]MemberView, 0, len(members))
	for _, mem := range members {
		view := MemberView{
			SequenceOrder:    mem.SequenceOrder,
			DonorID:          mem.DonorID,
			LastDonationDate: mem.LastDonationDate,
			NextScheduledFor: mem.NextScheduledFor,
		}
		if mem.DonorID != nil {
			if snap, ok := snapshots[*mem.DonorID]; ok {
				cls := m.classifier.ClassifyDonor(snap)
				view.Name = snap.Name
				view.Phone = snap.Phone
				view.BloodGroup = snap.BloodGroup
				view.LocationText = snap.LocationText
				view.Ready = cls.Ready
				view.EligibilityLabel = cls.Label
			}
		}
		views = append(views, view)
	}

	details := &Details{Cohort: c, Members: views}
	if m.schedules != nil {
		next, err := m.schedules.NextPlannedFor(ctx, patientID)
		if err != nil {
			m.log.Warn().Err(err).Str("patient_id", string(patientID)).Msg("next transfusion lookup failed")
		} else {
			details.NextTransfusionFor = next
		}
	}
	return details, nil
}

// ResolveRotationDonor returns the membership slot owed for a cycle. When
// the designated donor is missing or not ready it returns the slot together
// with ErrRequiresBackup so the caller can apply its substitution policy.
func (m *Manager) ResolveRotationDonor(ctx context.Context, cohortID types.ID, cycleNumber int) (*Membership, error) {
	members, err := m.store.ListMembers(ctx, cohortID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "load members: %v", err)
	}
	if len(members) == 0 {
		return nil, apperr.Wrap(apperr.ErrNotFound, "cohort %s has no members", cohortID)
	}

	position := RotationPosition(cycleNumber, m.cfg.CohortSize)
	var slot *Membership
	for i := range members {
		if members[i].SequenceOrder == position {
			slot = &members[i]
			break
		}
	}
	if slot == nil {
		return nil, apperr.Wrap(apperr.ErrNotFound, "cohort %s slot %d missing", cohortID, position)
	}
	if slot.DonorID == nil {
		return slot, ErrRequiresBackup
	}

	snapshots, err := m.donors.Snapshots(ctx, []types.ID{*slot.DonorID})
	if err != nil {
		return nil, err
	}
	snap, ok := snapshots[*slot.DonorID]
	if !ok {
		return slot, ErrRequiresBackup
	}
	if !m.classifier.ClassifyDonor(snap).Ready {
		return slot, ErrRequiresBackup
	}
	return slot, nil
}

// MemberIDs returns the donor ids currently holding slots in a cohort.
func (m *Manager) MemberIDs(ctx context.Context, cohortID types.ID) ([]types.ID, error) {
	members, err := m.store.ListMembers(ctx, cohortID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "load members: %v", err)
	}
	ids := make([]types.ID, 0, len(members))
	for _, mem := range members {
		if mem.DonorID != nil {
			ids = append(ids, *mem.DonorID)
		}
	}
	return ids, nil
}

// ActiveCohort exposes the patient's active cohort to the scheduler.
func (m *Manager) ActiveCohort(ctx context.Context, patientID types.ID) (*Cohort, error) {
	return m.store.GetActiveByPatient(ctx, patientID)
}

// MarkDonation updates the denormalized member cache after a completed
// cycle and clears the slot's upcoming assignment.
func (m *Manager) MarkDonation(ctx context.Context, cohortID, donorID types.ID, donatedAt time.Time) error {
	if err := m.store.TouchMemberDonation(ctx, cohortID, donorID, donatedAt); err != nil {
		return apperr.Wrap(apperr.ErrUpstream, "touch member donation: %v", err)
	}
	return nil
}

// NoteUpcomingAssignment records the planned date on the slot.
func (m *Manager) NoteUpcomingAssignment(ctx context.Context, cohortID types.ID, sequenceOrder int, at *time.Time) {
	if err := m.store.SetMemberNextScheduled(ctx, cohortID, sequenceOrder, at); err != nil {
		m.log.Warn().Err(err).Str("cohort_id", string(cohortID)).Int("slot", sequenceOrder).Msg("slot assignment note failed")
	}
}
