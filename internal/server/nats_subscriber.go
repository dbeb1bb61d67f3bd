package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/aurum-saas/aurum-server/internal/tenant"
)

// NATSSubscriber listens for tenant lifecycle events published by peer
// instances and drops the local caches for the affected tenant, so a
// suspension on one node takes effect everywhere within one message hop
// instead of one TTL window.
type NATSSubscriber struct {
	nc        *nats.Conn
	directory *tenant.Directory
	registry  *tenant.Registry
	subs      []*nats.Subscription
}

// NewNATSSubscriber creates NATS subscriber
func NewNATSSubscriber(nc *nats.Conn, directory *tenant.Directory, registry *tenant.Registry) *NATSSubscriber {
	return &NATSSubscriber{
		nc:        nc,
		directory: directory,
		registry:  registry,
		subs:      make([]*nats.Subscription, 0),
	}
}

// Start starts subscriptions and blocks until ctx is done
func (s *NATSSubscriber) Start(ctx context.Context) error {
	for _, subject := range []string{
		"tenant.*.created",
		"tenant.*.updated",
		"tenant.*.suspended",
	} {
		sub, err := s.nc.Subscribe(subject, s.handleTenantEvent)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	log.Info().
		Int("subscriptions", len(s.subs)).
		Msg("NATS subscriber started")

	<-ctx.Done()

	// Unsubscribe
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// handleTenantEvent handles tenant.<id>.<event> messages
func (s *NATSSubscriber) handleTenantEvent(msg *nats.Msg) {
	parts := strings.Split(msg.Subject, ".")
	if len(parts) != 3 {
		log.Warn().Str("subject", msg.Subject).Msg("Unexpected tenant event subject")
		return
	}

	tenantID, err := uuid.Parse(parts[1])
	if err != nil {
		log.Warn().Str("subject", msg.Subject).Msg("Invalid tenant id in event subject")
		return
	}

	s.directory.Invalidate(tenantID.String())
	s.registry.Invalidate(tenantID)

	log.Debug().
		Str("tenant_id", tenantID.String()).
		Str("event", parts[2]).
		Msg("Dropped tenant caches after event")
}
