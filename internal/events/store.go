package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore writes domain events to the domain_events table.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) InsertDomainEvent(ctx context.Context, tenantID, topic, aggregateID string, payload []byte) (Event, error) {
	var ev Event
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO domain_events (tenant_id, topic, aggregate_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, topic, aggregate_id, payload, occurred_at`,
		tenantID, topic, aggregateID, payload,
	).Scan(&ev.ID, &ev.TenantID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}
