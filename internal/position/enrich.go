package position

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"hlpulse/internal/eventbus"
	"hlpulse/internal/trader"
)

// ScoreLookup resolves a tracked trader's current score and tags; backed by
// trader.TrackedSet in the Scraper composition root.
type ScoreLookup interface {
	Get(id string) (trader.ScoredRow, bool)
}

// Enricher subscribes to positions.raw and republishes positions.scored, attaching
// each trader's score/tags at emission time (§4.3: "PositionScoredEvent enriches
// PositionRawEvent with the trader's score/tags at emission time"). A raw event for a
// trader no longer tracked is dropped rather than republished with stale data.
type Enricher struct {
	lookup  ScoreLookup
	publish func(ctx context.Context, topic eventbus.Topic, payload interface{}) error
	log     zerolog.Logger
}

// NewEnricher builds the positions.raw -> positions.scored bridge.
func NewEnricher(lookup ScoreLookup, publish func(ctx context.Context, topic eventbus.Topic, payload interface{}) error, log zerolog.Logger) *Enricher {
	return &Enricher{lookup: lookup, publish: publish, log: log.With().Str("component", "position.enricher").Logger()}
}

// HandleRaw is an eventbus.Handler for TopicPositionsRaw.
func (e *Enricher) HandleRaw(msg eventbus.Message) {
	var raw eventbus.PositionRawEvent
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		e.log.Warn().Err(err).Msg("malformed positions.raw payload")
		return
	}

	sr, ok := e.lookup.Get(raw.Address)
	if !ok {
		return
	}

	tags := make([]string, 0, len(sr.Tags))
	for _, t := range sr.Tags {
		tags = append(tags, string(t))
	}

	evt := eventbus.PositionScoredEvent{
		PositionRawEvent: raw,
		Score:            sr.Score,
		Tags:             tags,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.publish(ctx, eventbus.TopicPositionsScored, evt); err != nil {
		e.log.Warn().Err(err).Str("trader", raw.Address).Msg("failed to publish positions.scored")
	}
}
