// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads. A row that fails to resolve can never be published, so every
// resolution error is permanent.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/config"
	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox/payloads"
)

// Route binds an event type to its aggregate, its topic and its payload type.
type Route struct {
	EventType enums.OutboxEventType
	Aggregate enums.OutboxAggregateType
	Topic     string
	decode    func(json.RawMessage) (any, error)
}

func route[T any](event enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) Route {
	return Route{
		EventType: event,
		Aggregate: aggregate,
		Topic:     topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// Resolved is an outbox row with its route and decoded payload.
type Resolved struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

type Registry struct {
	routes map[enums.OutboxEventType]Route
}

// New routes ledger events to cfg.LedgerTopic and notification events to
// cfg.NotificationTopic. Both must be set.
func New(cfg config.PubSubConfig) (*Registry, error) {
	if cfg.LedgerTopic == "" || cfg.NotificationTopic == "" {
		return nil, errors.New("registry: ledger and notification topics are required")
	}
	ledger, notify := cfg.LedgerTopic, cfg.NotificationTopic
	return newRegistry(
		route[payloads.CreditsPurchasedEvent](enums.EventCreditsPurchased, enums.AggregatePaymentOrder, ledger),
		route[payloads.CreditsRefundedEvent](enums.EventCreditsRefunded, enums.AggregatePaymentOrder, ledger),
		route[payloads.TrialGrantedEvent](enums.EventTrialGranted, enums.AggregateCreditAccount, ledger),
		route[payloads.ReferralRewardedEvent](enums.EventReferralRewarded, enums.AggregateReferral, ledger),
		route[payloads.NotificationRequestedEvent](enums.EventNotificationRequested, enums.AggregateNotification, notify),
	), nil
}

func newRegistry(routes ...Route) *Registry {
	r := &Registry{routes: make(map[enums.OutboxEventType]Route, len(routes))}
	for _, rt := range routes {
		r.routes[rt.EventType] = rt
	}
	return r
}

// Route reports the route for an event type.
func (r *Registry) Route(event enums.OutboxEventType) (Route, bool) {
	rt, ok := r.routes[event]
	return rt, ok
}

// Resolve checks row against its route and decodes the envelope and payload.
func (r *Registry) Resolve(row models.OutboxEvent) (*Resolved, error) {
	rt, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("no route for event type %q", row.EventType))
	case rt.Aggregate != row.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s aggregates, row says %s", row.EventType, rt.Aggregate, row.AggregateType))
	case row.AggregateID == uuid.Nil:
		return nil, Permanent(fmt.Errorf("%s row has no aggregate id", row.EventType))
	}

	var env outbox.Envelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", row.EventType))
	}
	payload, err := rt.decode(env.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}
	return &Resolved{Route: rt, Envelope: env, Payload: payload}, nil
}
