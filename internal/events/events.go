// README: Domain event emission over Redis pub/sub for downstream fan-out layers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hemolink/internal/types"
)

const channel = "hemolink:events"

type Type string

const (
	CohortChanged   Type = "cohort_changed"
	ScheduleChanged Type = "schedule_changed"
	BroadcastSent   Type = "broadcast_sent"
)

// Event is what a separate notification/caching layer subscribes to. The
// engine only announces that an entity changed; it never assumes a push
// delivery path exists.
type Event struct {
	Type      Type      `json:"type"`
	PatientID types.ID  `json:"patient_id,omitempty"`
	EntityID  types.ID  `json:"entity_id,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher emits events best-effort: a publish failure is logged and
// swallowed so it can never fail the write that triggered it.
type Publisher struct {
	redis *redis.Client
	log   zerolog.Logger
}

func NewPublisher(client *redis.Client, log zerolog.Logger) *Publisher {
	return &Publisher{redis: client, log: log}
}

func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil || p.redis == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.log.Error().Err(err).Str("type", string(e.Type)).Msg("marshal event")
		return
	}
	if err := p.redis.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Warn().Err(err).Str("type", string(e.Type)).Msg("publish event")
	}
}
