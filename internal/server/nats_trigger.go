package server

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/trainhub/trainhub-server/internal/notifier"
)

// SubjectEscalationRun triggers one escalation notifier run. Publishing
// here lets external schedulers or operators force a scan without waiting
// for the in-process schedule.
const SubjectEscalationRun = "trainhub.jobs.escalation"

// NATSTrigger runs notifier jobs on demand from NATS messages.
type NATSTrigger struct {
	nc       *nats.Conn
	notifier *notifier.EscalationNotifier
	subs     []*nats.Subscription
}

// NewNATSTrigger creates a NATS job trigger.
func NewNATSTrigger(nc *nats.Conn, n *notifier.EscalationNotifier) *NATSTrigger {
	return &NATSTrigger{
		nc:       nc,
		notifier: n,
		subs:     make([]*nats.Subscription, 0),
	}
}

// Start subscribes and blocks until the context is canceled.
func (t *NATSTrigger) Start(ctx context.Context) error {
	sub, err := t.nc.Subscribe(SubjectEscalationRun, t.handleEscalationRun)
	if err != nil {
		return fmt.Errorf("subscribe escalation trigger: %w", err)
	}
	t.subs = append(t.subs, sub)

	log.Info().
		Int("subscriptions", len(t.subs)).
		Msg("NATS trigger started")

	<-ctx.Done()

	for _, sub := range t.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// handleEscalationRun triggers an escalation scan. Concurrent triggers
// collapse into the notifier's in-flight run.
func (t *NATSTrigger) handleEscalationRun(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Msg("Received escalation run trigger")

	if err := t.notifier.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("Triggered escalation run failed")
		return
	}

	if msg.Reply != "" {
		if err := msg.Respond([]byte(`{"status":"ok"}`)); err != nil {
			log.Warn().Err(err).Msg("Failed to reply to escalation trigger")
		}
	}
}
