// README: Broadcast dispatcher; persists the record, then fans out fire-and-forget.
package request

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hemolink/internal/apperr"
	"hemolink/internal/events"
	"hemolink/internal/modules/donor"
	"hemolink/internal/types"
)

// BroadcastStore is the persistence slice the dispatcher needs.
type BroadcastStore interface {
	GetRequest(ctx context.Context, id types.ID) (*BloodRequest, error)
	InsertBroadcast(ctx context.Context, b *Broadcast) error
	RecordDispatch(ctx context.Context, requestID types.ID, donorIDs []types.ID) error
	NotifiedDonors(ctx context.Context, requestID types.ID) (map[types.ID]struct{}, error)
	GetDispatchedAt(ctx context.Context, requestID types.ID) (time.Time, bool, error)
}

// DonorSearcher is the matching surface the dispatcher fans out through.
type DonorSearcher interface {
	Search(ctx context.Context, q donor.SearchQuery) ([]donor.Match, error)
}

// Notifier delivers push notifications. Individual delivery failures are the
// notifier's problem; the dispatcher only logs them.
type Notifier interface {
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (int, error)
}

type Service struct {
	store    BroadcastStore
	donors   DonorSearcher
	notifier Notifier
	events   *events.Publisher
	log      zerolog.Logger
	// notifyTimeout bounds the detached fan-out call.
	notifyTimeout time.Duration
}

func NewService(store BroadcastStore, donors DonorSearcher, notifier Notifier, publisher *events.Publisher, log zerolog.Logger) *Service {
	return &Service{
		store:         store,
		donors:        donors,
		notifier:      notifier,
		events:        publisher,
		log:           log,
		notifyTimeout: 30 * time.Second,
	}
}

// BroadcastCommand carries the dispatch parameters. Origin falls back to the
// request's own coordinates when nil.
type BroadcastCommand struct {
	RequestID  types.ID
	BloodGroup string
	Origin     *types.Point
	RadiusKm   float64
}

// Dispatch matches ready donors for a pending request, persists exactly one
// broadcast record, then hands the matched set to the notifier without
// waiting for delivery. A non-pending or missing request is rejected before
// anything is written.
func (s *Service) Dispatch(ctx context.Context, cmd BroadcastCommand) (*BroadcastResult, error) {
	req, err := s.store.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		if err == errRowNotFound {
			return nil, apperr.Wrap(apperr.ErrNotFound, "blood request %s", cmd.RequestID)
		}
		return nil, apperr.Wrap(apperr.ErrUpstream, "load request: %v", err)
	}
	if req.Status != StatusPending {
		return nil, apperr.Wrap(apperr.ErrPreconditionFailed, "request %s is %s, not pending", req.ID, req.Status)
	}

	bloodGroup := cmd.BloodGroup
	if bloodGroup == "" {
		bloodGroup = req.BloodGroup
	}
	origin := cmd.Origin
	if origin == nil {
		origin = req.Coordinates
	}

	matches, err := s.donors.Search(ctx, donor.SearchQuery{
		BloodGroup:   bloodGroup,
		Origin:       origin,
		RadiusKm:     cmd.RadiusKm,
		Availability: donor.AvailabilityNow,
	})
	if err != nil {
		return nil, err
	}

	already, err := s.store.NotifiedDonors(ctx, req.ID)
	if err != nil {
		// Dedup state is an optimisation; losing it means at worst a repeat
		// notification, never a failed broadcast.
		s.log.Warn().Err(err).Str("request_id", string(req.ID)).Msg("notified-set lookup failed")
		already = map[types.ID]struct{}{}
	}
	fresh := make([]donor.Match, 0, len(matches))
	for _, m := range matches {
		if _, dup := already[m.Donor.ID]; !dup {
			fresh = append(fresh, m)
		}
	}

	b := &Broadcast{
		ID:           types.ID(uuid.NewString()),
		RequestID:    req.ID,
		RadiusKm:     cmd.RadiusKm,
		MatchedCount: len(matches),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.InsertBroadcast(ctx, b); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "persist broadcast: %v", err)
	}

	freshIDs := make([]types.ID, len(fresh))
	for i, m := range fresh {
		freshIDs[i] = m.Donor.ID
	}
	if err := s.store.RecordDispatch(ctx, req.ID, freshIDs); err != nil {
		s.log.Warn().Err(err).Str("request_id", string(req.ID)).Msg("dispatch bookkeeping failed")
	}

	// Fan-out happens after the record is durable and never blocks or fails
	// the broadcast call.
	go s.notify(b, req, fresh)

	s.events.Publish(ctx, events.Event{
		Type:      events.BroadcastSent,
		PatientID: req.PatientID,
		EntityID:  b.ID,
	})

	return &BroadcastResult{
		BroadcastID:  b.ID,
		RequestID:    req.ID,
		MatchedCount: len(matches),
		NotifyQueued: len(fresh),
	}, nil
}

// DispatchStatus summarises a request's broadcast history: whether it was
// ever dispatched, when, and how many donors were notified so far.
type DispatchStatus struct {
	RequestID     types.ID
	Dispatched    bool
	DispatchedAt  *time.Time
	NotifiedCount int
}

// Status reports the dispatch bookkeeping for a request.
func (s *Service) Status(ctx context.Context, requestID types.ID) (*DispatchStatus, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		if err == errRowNotFound {
			return nil, apperr.Wrap(apperr.ErrNotFound, "blood request %s", requestID)
		}
		return nil, apperr.Wrap(apperr.ErrUpstream, "load request: %v", err)
	}
	status := &DispatchStatus{RequestID: req.ID}
	at, ok, err := s.store.GetDispatchedAt(ctx, req.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "load dispatch time: %v", err)
	}
	if ok {
		status.Dispatched = true
		status.DispatchedAt = &at
	}
	notified, err := s.store.NotifiedDonors(ctx, req.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "load notified set: %v", err)
	}
	status.NotifiedCount = len(notified)
	return status, nil
}

func (s *Service) notify(b *Broadcast, req *BloodRequest, matches []donor.Match) {
	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()

	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Donor.DeviceToken != "" {
			tokens = append(tokens, m.Donor.DeviceToken)
		}
	}
	if len(tokens) == 0 {
		return
	}

	delivered, err := s.notifier.SendMulticast(ctx, tokens,
		"Urgent blood request",
		req.BloodGroup+" donors needed nearby",
		map[string]string{
			"request_id":   string(req.ID),
			"broadcast_id": string(b.ID),
			"blood_group":  req.BloodGroup,
			"urgency":      req.Urgency,
		},
	)
	if err != nil {
		s.log.Error().Err(err).Str("broadcast_id", string(b.ID)).Msg("broadcast fan-out failed")
		return
	}
	s.log.Info().
		Str("broadcast_id", string(b.ID)).
		Int("delivered", delivered).
		Int("targets", len(tokens)).
		Msg("broadcast fan-out complete")
}
