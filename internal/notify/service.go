// Package notify connects the hand-off queue to the outside world in two
// directions: it consumes inbound flush events (the "user tapped the
// result-ready notification" signal) and turns each into one queue drain,
// and it can publish result-ready events to an optional webhook.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// FlushEvent is the inbound trigger for a queue drain. The correlation
// identifier is opaque to the core and only carried for diagnostics.
type FlushEvent struct {
	CorrelationID string    `json:"correlation_id"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Drainer is the queue surface the service triggers.
type Drainer interface {
	DrainOnForeground(ctx context.Context) error
}

// Service consumes flush events and drains the queue once per event.
type Service struct {
	queue  Drainer
	events chan FlushEvent
}

// NewService creates a flush-event consumer for the given queue.
func NewService(q Drainer) *Service {
	return &Service{
		queue:  q,
		events: make(chan FlushEvent, 16),
	}
}

// Notify enqueues a flush event. It never blocks; when the buffer is full
// the event is dropped, since a pending event already guarantees a drain.
func (s *Service) Notify(event FlushEvent) {
	select {
	case s.events <- event:
	default:
		log.Debug().Str("correlation_id", event.CorrelationID).Msg("Flush event dropped, drain already pending")
	}
}

// Start consumes flush events until ctx is cancelled. Each event triggers
// exactly one drain attempt; drain failures are logged, not fatal, because
// the entry stays queued for the next event.
func (s *Service) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-s.events:
				if err := s.queue.DrainOnForeground(ctx); err != nil {
					log.Warn().Err(err).
						Str("correlation_id", event.CorrelationID).
						Msg("Notification-triggered drain failed")
					continue
				}
				log.Debug().
					Str("correlation_id", event.CorrelationID).
					Msg("Notification-triggered drain completed")
			}
		}
	}()
}
