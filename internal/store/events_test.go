package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/database"
	"objection-engine/internal/models"
)

func newMockEventStore(t *testing.T) (*EventStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewEventStore(&database.PostgresClient{DB: db}), mock
}

func TestInsertNewEvent(t *testing.T) {
	s, mock := newMockEventStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_events")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := &models.WebhookEvent{
		ExternalEventID: "evt-crm-100",
		EventType:       "submission.synced",
		Payload:         []byte(`{"eventId":"evt-crm-100"}`),
	}
	inserted, err := s.Insert(context.Background(), event)

	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.ReceivedAt.IsZero())
}

func TestInsertRedeliveredEventReportsDuplicate(t *testing.T) {
	s, mock := newMockEventStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_events")).
		WillReturnError(&pq.Error{Code: "23505"})

	event := &models.WebhookEvent{
		ExternalEventID: "evt-crm-100",
		EventType:       "submission.synced",
		Payload:         []byte(`{}`),
	}
	inserted, err := s.Insert(context.Background(), event)

	require.NoError(t, err)
	assert.False(t, inserted)
}
