package cohort

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hemolink/internal/apperr"
	"hemolink/internal/config"
	"hemolink/internal/modules/donor"
	"hemolink/internal/types"
)

// ---------------------------------------------------------------------------
// In-memory mocks
// ---------------------------------------------------------------------------

type memStore struct {
	cohorts   map[types.ID]*Cohort
	members   map[types.ID][]Membership
	createErr error
	// missActiveOnce makes the first GetActiveByPatient miss, mimicking the
	// window between the pre-check and a conflicting concurrent insert.
	missActiveOnce bool
}

func newMemStore() *memStore {
	return &memStore{
		cohorts: make(map[types.ID]*Cohort),
		members: make(map[types.ID][]Membership),
	}
}

func (m *memStore) CreateWithMembers(_ context.Context, c *Cohort, donorIDs []types.ID) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.cohorts {
		if existing.PatientID == c.PatientID && existing.Active {
			return apperr.Wrap(apperr.ErrConflict, "active cohort exists")
		}
	}
	cp := *c
	m.cohorts[c.ID] = &cp
	for order, id := range donorIDs {
		donorID := id
		m.members[c.ID] = append(m.members[c.ID], Membership{
			CohortID:      c.ID,
			DonorID:       &donorID,
			SequenceOrder: order,
		})
	}
	return nil
}

func (m *memStore) GetActiveByPatient(_ context.Context, patientID types.ID) (*Cohort, error) {
	if m.missActiveOnce {
		m.missActiveOnce = false
		return nil, apperr.Wrap(apperr.ErrNotFound, "cohort")
	}
	for _, c := range m.cohorts {
		if c.PatientID == patientID && c.Active {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperr.Wrap(apperr.ErrNotFound, "cohort")
}

func (m *memStore) ListMembers(_ context.Context, cohortID types.ID) ([]Membership, error) {
	out := make([]Membership, len(m.members[cohortID]))
	copy(out, m.members[cohortID])
	return out, nil
}

func (m *memStore) TouchMemberDonation(_ context.Context, cohortID, donorID types.ID, donatedAt time.Time) error {
	for i, mem := range m.members[cohortID] {
		if mem.DonorID != nil && *mem.DonorID == donorID {
			at := donatedAt
			m.members[cohortID][i].LastDonationDate = &at
		}
	}
	return nil
}

func (m *memStore) SetMemberNextScheduled(_ context.Context, cohortID types.ID, sequenceOrder int, at *time.Time) error {
	for i, mem := range m.members[cohortID] {
		if mem.SequenceOrder == sequenceOrder {
			m.members[cohortID][i].NextScheduledFor = at
		}
	}
	return nil
}

type memDirectory struct {
	donors map[types.ID]donor.Donor
}

func (m *memDirectory) Snapshots(_ context.Context, ids []types.ID) (map[types.ID]donor.Donor, error) {
	out := make(map[types.ID]donor.Donor, len(ids))
	for _, id := range ids {
		if d, ok := m.donors[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

type fixedNext struct {
	at  *time.Time
	err error
}

func (f fixedNext) NextPlannedFor(context.Context, types.ID) (*time.Time, error) {
	return f.at, f.err
}

func readyDonor(id string) donor.Donor {
	return donor.Donor{
		ID:                types.ID(id),
		Name:              "Donor " + id,
		BloodGroup:        "B+",
		EligibilityStatus: "eligible",
	}
}

func fiveIDs() []types.ID {
	return []types.ID{"d0", "d1", "d2", "d3", "d4"}
}

func newTestManager(store Store, dir DonorDirectory) *Manager {
	cfg := config.RotationConfig{CohortSize: 5, CadenceDays: 21, DonationCooldownDays: 90}
	return NewManager(store, dir, donor.NewClassifier(cfg.DonationCooldownDays), cfg, nil, zerolog.Nop())
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_HappyPath(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(store, &memDirectory{})

	c, err := mgr.Create(context.Background(), CreateCommand{
		PatientID: "p1",
		Name:      "thal cohort",
		DonorIDs:  fiveIDs(),
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == "" || !c.Active {
		t.Fatalf("unexpected cohort: %+v", c)
	}
	members, _ := store.ListMembers(context.Background(), c.ID)
	if len(members) != 5 {
		t.Fatalf("expected 5 members, got %d", len(members))
	}
	for i, m := range members {
		if m.SequenceOrder != i {
			t.Fatalf("member %d has order %d", i, m.SequenceOrder)
		}
	}
}

func TestCreate_WrongSizeRejected(t *testing.T) {
	mgr := newTestManager(newMemStore(), &memDirectory{})

	_, err := mgr.Create(context.Background(), CreateCommand{
		PatientID: "p1",
		DonorIDs:  []types.ID{"d0", "d1", "d2"},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreate_DuplicateDonorRejected(t *testing.T) {
	mgr := newTestManager(newMemStore(), &memDirectory{})

	_, err := mgr.Create(context.Background(), CreateCommand{
		PatientID: "p1",
		DonorIDs:  []types.ID{"d0", "d1", "d2", "d3", "d0"},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreate_SecondActiveCohortRejected(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(store, &memDirectory{})
	ctx := context.Background()

	if _, err := mgr.Create(ctx, CreateCommand{PatientID: "p1", DonorIDs: fiveIDs()}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := mgr.Create(ctx, CreateCommand{PatientID: "p1", DonorIDs: fiveIDs()})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation on duplicate active cohort, got %v", err)
	}
}

func TestCreate_ConflictRaceReturnsWinner(t *testing.T) {
	store := newMemStore()
	store.cohorts["c-win"] = &Cohort{ID: "c-win", PatientID: "p1", Active: true}
	// The pre-check misses, the insert conflicts against the winner, and the
	// re-read converges on it.
	store.missActiveOnce = true
	store.createErr = apperr.Wrap(apperr.ErrConflict, "duplicate")
	mgr := newTestManager(store, &memDirectory{})

	got, err := mgr.Create(context.Background(), CreateCommand{PatientID: "p1", DonorIDs: fiveIDs()})
	if err != nil {
		t.Fatalf("race convergence: %v", err)
	}
	if got.ID != "c-win" {
		t.Fatalf("expected winner cohort, got %s", got.ID)
	}
}

// ---------------------------------------------------------------------------
// Details
// ---------------------------------------------------------------------------

func TestGetDetails_NoCohortIsEmptyNotError(t *testing.T) {
	mgr := newTestManager(newMemStore(), &memDirectory{})

	details, err := mgr.GetDetails(context.Background(), "p-none")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Cohort != nil || len(details.Members) != 0 {
		t.Fatalf("expected empty details, got %+v", details)
	}
}

func TestGetDetails_MembersInOrderWithReadiness(t *testing.T) {
	store := newMemStore()
	dir := &memDirectory{donors: map[types.ID]donor.Donor{}}
	for _, id := range fiveIDs() {
		dir.donors[id] = readyDonor(string(id))
	}
	// d2 sits in cooldown.
	d2 := dir.donors["d2"]
	recent := time.Now().Add(-10 * 24 * time.Hour)
	d2.LastDonationDate = &recent
	dir.donors["d2"] = d2

	mgr := newTestManager(store, dir)
	ctx := context.Background()
	c, err := mgr.Create(ctx, CreateCommand{PatientID: "p1", DonorIDs: fiveIDs()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	next := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	mgr.SetScheduleSource(fixedNext{at: &next})

	details, err := mgr.GetDetails(ctx, "p1")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Cohort == nil || details.Cohort.ID != c.ID {
		t.Fatalf("wrong cohort in details: %+v", details.Cohort)
	}
	if len(details.Members) != 5 {
		t.Fatalf("expected 5 members, got %d", len(details.Members))
	}
	for i, m := range details.Members {
		if m.SequenceOrder != i {
			t.Fatalf("member %d out of order: %d", i, m.SequenceOrder)
		}
	}
	if details.Members[2].Ready {
		t.Fatal("cooldown donor must not be ready")
	}
	if details.Members[2].EligibilityLabel != "cooldown" {
		t.Fatalf("expected cooldown label, got %q", details.Members[2].EligibilityLabel)
	}
	if details.Members[0].Ready != true || details.Members[0].Name == "" {
		t.Fatalf("expected enriched ready member, got %+v", details.Members[0])
	}
	if details.NextTransfusionFor == nil || !details.NextTransfusionFor.Equal(next) {
		t.Fatalf("expected next transfusion %v, got %v", next, details.NextTransfusionFor)
	}
}

func TestGetDetails_ScheduleLookupFailureDegrades(t *testing.T) {
	store := newMemStore()
	dir := &memDirectory{donors: map[types.ID]donor.Donor{}}
	mgr := newTestManager(store, dir)
	ctx := context.Background()
	if _, err := mgr.Create(ctx, CreateCommand{PatientID: "p1", DonorIDs: fiveIDs()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	mgr.SetScheduleSource(fixedNext{err: errors.New("db down")})

	details, err := mgr.GetDetails(ctx, "p1")
	if err != nil {
		t.Fatalf("schedule lookup failure must not fail details: %v", err)
	}
	if details.NextTransfusionFor != nil {
		t.Fatal("expected nil next transfusion on lookup failure")
	}
}

// ---------------------------------------------------------------------------
// Rotation
// ---------------------------------------------------------------------------

func TestRotationPosition_PeriodEqualsCohortSize(t *testing.T) {
	for cycle := 0; cycle < 20; cycle++ {
		if RotationPosition(cycle, 5) != RotationPosition(cycle+5, 5) {
			t.Fatalf("cycle %d and %d must map to the same slot", cycle, cycle+5)
		}
	}
	if RotationPosition(0, 5) != 0 || RotationPosition(7, 5) != 2 {
		t.Fatal("rotation position is cycle mod size")
	}
	if RotationPosition(3, 0) != 0 {
		t.Fatal("degenerate size must not panic")
	}
}

func TestResolveRotationDonor_ReadyMember(t *testing.T) {
	store := newMemStore()
	dir := &memDirectory{donors: map[types.ID]donor.Donor{}}
	for _, id := range fiveIDs() {
		dir.donors[id] = readyDonor(string(id))
	}
	mgr := newTestManager(store, dir)
	ctx := context.Background()
	c, err := mgr.Create(ctx, CreateCommand{PatientID: "p1", DonorIDs: fiveIDs()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	slot, err := mgr.ResolveRotationDonor(ctx, c.ID, 7)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if slot.SequenceOrder != 2 || slot.DonorID == nil || *slot.DonorID != "d2" {
		t.Fatalf("cycle 7 must resolve slot 2 / d2, got %+v", slot)
	}
}

func TestResolveRotationDonor_NotReadyRequiresBackup(t *testing.T) {
	store := newMemStore()
	dir := &memDirectory{donors: map[types.ID]donor.Donor{}}
	for _, id := range fiveIDs() {
		dir.donors[id] = readyDonor(string(id))
	}
	d0 := dir.donors["d0"]
	d0.EligibilityStatus = "temporarily ineligible"
	dir.donors["d0"] = d0

	mgr := newTestManager(store, dir)
	ctx := context.Background()
	c, err := mgr.Create(ctx, CreateCommand{PatientID: "p1", DonorIDs: fiveIDs()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	slot, err := mgr.ResolveRotationDonor(ctx, c.ID, 5)
	if !errors.Is(err, ErrRequiresBackup) {
		t.Fatalf("expected ErrRequiresBackup, got %v", err)
	}
	if slot == nil || slot.SequenceOrder != 0 {
		t.Fatalf("slot must still be returned with the backup signal, got %+v", slot)
	}
}

func TestResolveRotationDonor_MissingSnapshotRequiresBackup(t *testing.T) {
	store := newMemStore()
	dir := &memDirectory{donors: map[types.ID]donor.Donor{}}
	mgr := newTestManager(store, dir)
	ctx := context.Background()
	c, err := mgr.Create(ctx, CreateCommand{PatientID: "p1", DonorIDs: fiveIDs()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := mgr.ResolveRotationDonor(ctx, c.ID, 0); !errors.Is(err, ErrRequiresBackup) {
		t.Fatalf("unknown donor snapshot must require backup, got %v", err)
	}
}

func TestResolveRotationDonor_EmptyCohort(t *testing.T) {
	mgr := newTestManager(newMemStore(), &memDirectory{})

	_, err := mgr.ResolveRotationDonor(context.Background(), "missing", 0)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
