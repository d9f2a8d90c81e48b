package request

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hemolink/internal/apperr"
	"hemolink/internal/modules/donor"
	"hemolink/internal/types"
)

// ---------------------------------------------------------------------------
// In-memory mocks
// ---------------------------------------------------------------------------

type mockStore struct {
	mu         sync.Mutex
	requests   map[types.ID]*BloodRequest
	broadcasts []*Broadcast
	notified   map[types.ID]map[types.ID]struct{}
	insertErr  error
}

func newMockStore() *mockStore {
	return &mockStore{
		requests: make(map[types.ID]*BloodRequest),
		notified: make(map[types.ID]map[types.ID]struct{}),
	}
}

func (m *mockStore) GetRequest(_ context.Context, id types.ID) (*BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, errRowNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) InsertBroadcast(_ context.Context, b *Broadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.broadcasts = append(m.broadcasts, b)
	return nil
}

func (m *mockStore) RecordDispatch(_ context.Context, requestID types.ID, donorIDs []types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.notified[requestID]
	if !ok {
		set = make(map[types.ID]struct{})
		m.notified[requestID] = set
	}
	for _, id := range donorIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (m *mockStore) NotifiedDonors(_ context.Context, requestID types.ID) (map[types.ID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.ID]struct{})
	for id := range m.notified[requestID] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *mockStore) GetDispatchedAt(_ context.Context, requestID types.ID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.notified[requestID]) == 0 {
		return time.Time{}, false, nil
	}
	return time.Now(), true, nil
}

func (m *mockStore) broadcastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.broadcasts)
}

type mockSearcher struct {
	matches []donor.Match
	err     error
}

func (m *mockSearcher) Search(_ context.Context, _ donor.SearchQuery) ([]donor.Match, error) {
	return m.matches, m.err
}

type mockNotifier struct {
	mu     sync.Mutex
	calls  [][]string
	err    error
	called chan struct{}
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{called: make(chan struct{}, 8)}
}

func (m *mockNotifier) SendMulticast(_ context.Context, tokens []string, _, _ string, _ map[string]string) (int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, tokens)
	m.mu.Unlock()
	m.called <- struct{}{}
	if m.err != nil {
		return 0, m.err
	}
	return len(tokens), nil
}

func (m *mockNotifier) waitForCall(t *testing.T) []string {
	t.Helper()
	select {
	case <-m.called:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never called")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func matchWithToken(id, token string) donor.Match {
	return donor.Match{
		Donor: donor.Donor{ID: types.ID(id), BloodGroup: "O-", DeviceToken: token},
		Ready: true,
	}
}

func newTestService(store *mockStore, searcher *mockSearcher, notifier *mockNotifier) *Service {
	return NewService(store, searcher, notifier, nil, zerolog.Nop())
}

func pendingRequest(id string) *BloodRequest {
	return &BloodRequest{
		ID:         types.ID(id),
		PatientID:  "patient-1",
		Type:       TypeEmergency,
		BloodGroup: "O-",
		Urgency:    "critical",
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDispatch_HappyPath(t *testing.T) {
	store := newMockStore()
	store.requests["r1"] = pendingRequest("r1")
	searcher := &mockSearcher{matches: []donor.Match{
		matchWithToken("d1", "tok1"),
		matchWithToken("d2", "tok2"),
	}}
	notifier := newMockNotifier()
	svc := newTestService(store, searcher, notifier)

	result, err := svc.Dispatch(context.Background(), BroadcastCommand{RequestID: "r1", RadiusKm: 10})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.MatchedCount != 2 || result.NotifyQueued != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if store.broadcastCount() != 1 {
		t.Fatalf("expected exactly 1 broadcast record, got %d", store.broadcastCount())
	}

	tokens := notifier.waitForCall(t)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens notified, got %v", tokens)
	}
}

func TestDispatch_RequestNotFound(t *testing.T) {
	svc := newTestService(newMockStore(), &mockSearcher{}, newMockNotifier())

	_, err := svc.Dispatch(context.Background(), BroadcastCommand{RequestID: "missing"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDispatch_NonPendingRejectedBeforeWrite(t *testing.T) {
	store := newMockStore()
	req := pendingRequest("r1")
	req.Status = StatusFulfilled
	store.requests["r1"] = req
	svc := newTestService(store, &mockSearcher{}, newMockNotifier())

	_, err := svc.Dispatch(context.Background(), BroadcastCommand{RequestID: "r1"})
	if !errors.Is(err, apperr.ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}
	if store.broadcastCount() != 0 {
		t.Fatal("no broadcast record may be written for a rejected dispatch")
	}
}

func TestDispatch_EmptyMatchIsSuccess(t *testing.T) {
	store := newMockStore()
	store.requests["r1"] = pendingRequest("r1")
	svc := newTestService(store, &mockSearcher{matches: nil}, newMockNotifier())

	result, err := svc.Dispatch(context.Background(), BroadcastCommand{RequestID: "r1", RadiusKm: 5})
	if err != nil {
		t.Fatalf("empty match must not be an error: %v", err)
	}
	if result.MatchedCount != 0 {
		t.Fatalf("expected 0 matches, got %d", result.MatchedCount)
	}
	if store.broadcastCount() != 1 {
		t.Fatal("broadcast record must be written even with zero matches")
	}
}

func TestDispatch_NotifierFailureDoesNotFailBroadcast(t *testing.T) {
	store := newMockStore()
	store.requests["r1"] = pendingRequest("r1")
	notifier := newMockNotifier()
	notifier.err = errors.New("fcm down")
	svc := newTestService(store, &mockSearcher{matches: []donor.Match{matchWithToken("d1", "tok1")}}, notifier)

	_, err := svc.Dispatch(context.Background(), BroadcastCommand{RequestID: "r1", RadiusKm: 10})
	if err != nil {
		t.Fatalf("notification failure must not surface: %v", err)
	}
	notifier.waitForCall(t)
	if store.broadcastCount() != 1 {
		t.Fatal("broadcast record must survive notifier failure")
	}
}

func TestDispatch_RepeatSkipsAlreadyNotified(t *testing.T) {
	store := newMockStore()
	store.requests["r1"] = pendingRequest("r1")
	searcher := &mockSearcher{matches: []donor.Match{
		matchWithToken("d1", "tok1"),
		matchWithToken("d2", "tok2"),
	}}
	notifier := newMockNotifier()
	svc := newTestService(store, searcher, notifier)
	ctx := context.Background()

	if _, err := svc.Dispatch(ctx, BroadcastCommand{RequestID: "r1", RadiusKm: 10}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	notifier.waitForCall(t)

	searcher.matches = append(searcher.matches, matchWithToken("d3", "tok3"))
	result, err := svc.Dispatch(ctx, BroadcastCommand{RequestID: "r1", RadiusKm: 10})
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if result.MatchedCount != 3 {
		t.Fatalf("expected 3 matched, got %d", result.MatchedCount)
	}
	if result.NotifyQueued != 1 {
		t.Fatalf("expected only the new donor queued, got %d", result.NotifyQueued)
	}
	tokens := notifier.waitForCall(t)
	if len(tokens) != 1 || tokens[0] != "tok3" {
		t.Fatalf("expected only tok3 notified on repeat, got %v", tokens)
	}

	// Each invocation still writes its own broadcast record.
	if store.broadcastCount() != 2 {
		t.Fatalf("expected 2 broadcast records, got %d", store.broadcastCount())
	}
}

func TestDispatch_SearchErrorPropagates(t *testing.T) {
	store := newMockStore()
	store.requests["r1"] = pendingRequest("r1")
	searcher := &mockSearcher{err: apperr.Wrap(apperr.ErrUpstream, "db down")}
	svc := newTestService(store, searcher, newMockNotifier())

	_, err := svc.Dispatch(context.Background(), BroadcastCommand{RequestID: "r1"})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if store.broadcastCount() != 0 {
		t.Fatal("no broadcast record may be written when matching fails")
	}
}

func TestStatus_ReflectsDispatchBookkeeping(t *testing.T) {
	store := newMockStore()
	store.requests["r1"] = pendingRequest("r1")
	notifier := newMockNotifier()
	svc := newTestService(store, &mockSearcher{matches: []donor.Match{matchWithToken("d1", "tok1")}}, notifier)
	ctx := context.Background()

	status, err := svc.Status(ctx, "r1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Dispatched || status.NotifiedCount != 0 {
		t.Fatalf("expected pristine status, got %+v", status)
	}

	if _, err := svc.Dispatch(ctx, BroadcastCommand{RequestID: "r1", RadiusKm: 10}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	notifier.waitForCall(t)

	status, err = svc.Status(ctx, "r1")
	if err != nil {
		t.Fatalf("status after dispatch: %v", err)
	}
	if !status.Dispatched || status.NotifiedCount != 1 {
		t.Fatalf("expected dispatched status with 1 notified, got %+v", status)
	}

	if _, err := svc.Status(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDispatch_InsertFailurePreventsNotification(t *testing.T) {
	store := newMockStore()
	store.requests["r1"] = pendingRequest("r1")
	store.insertErr = errors.New("pg down")
	notifier := newMockNotifier()
	svc := newTestService(store, &mockSearcher{matches: []donor.Match{matchWithToken("d1", "tok1")}}, notifier)

	_, err := svc.Dispatch(context.Background(), BroadcastCommand{RequestID: "r1"})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	select {
	case <-notifier.called:
		t.Fatal("notifier must not run when broadcast persistence fails")
	case <-time.After(100 * time.Millisecond):
	}
}
