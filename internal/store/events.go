package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"objection-engine/internal/common/database"
	"objection-engine/internal/models"
)

type EventStore struct {
	db *database.PostgresClient
}

func NewEventStore(db *database.PostgresClient) *EventStore {
	return &EventStore{db: db}
}

// Insert persists an inbound webhook event before any processing.
// Returns false when the external event id was already recorded, which
// is how duplicate deliveries are recognized.
func (s *EventStore) Insert(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.ReceivedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		INSERT INTO webhook_events (id, external_event_id, event_type, payload, processed, received_at)
		VALUES ($1,$2,$3,$4,FALSE,$5)`,
		event.ID, event.ExternalEventID, event.EventType, []byte(event.Payload), event.ReceivedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return true, nil
}

// MarkProcessed flags the event after successful reconciliation.
func (s *EventStore) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE webhook_events SET processed = TRUE, processed_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

// GetByExternalID fetches an event by its CRM-assigned id.
func (s *EventStore) GetByExternalID(ctx context.Context, externalID string) (*models.WebhookEvent, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, external_event_id, event_type, payload, processed, received_at, processed_at
		FROM webhook_events WHERE external_event_id = $1`, externalID)

	var event models.WebhookEvent
	var payload []byte
	var processedAt sql.NullTime
	err := row.Scan(&event.ID, &event.ExternalEventID, &event.EventType, &payload,
		&event.Processed, &event.ReceivedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan webhook event: %w", err)
	}
	event.Payload = payload
	if processedAt.Valid {
		event.ProcessedAt = &processedAt.Time
	}
	return &event, nil
}
