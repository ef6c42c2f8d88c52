package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/models"
)

type memEvents struct {
	byExternal map[string]*models.WebhookEvent
	processed  map[string]bool
	nextID     int
}

func newMemEvents() *memEvents {
	return &memEvents{byExternal: map[string]*models.WebhookEvent{}, processed: map[string]bool{}}
}

func (m *memEvents) Insert(_ context.Context, event *models.WebhookEvent) (bool, error) {
	if _, exists := m.byExternal[event.ExternalEventID]; exists {
		return false, nil
	}
	m.nextID++
	event.ID = fmt.Sprintf("evt-%d", m.nextID)
	m.byExternal[event.ExternalEventID] = event
	return true, nil
}

func (m *memEvents) MarkProcessed(_ context.Context, id string) error {
	m.processed[id] = true
	return nil
}

type memSubs struct {
	subs map[string]*models.Submission
}

func (m *memSubs) Get(_ context.Context, id string) (*models.Submission, error) {
	return m.subs[id], nil
}

func (m *memSubs) UpdateSyncStatus(_ context.Context, id string, status models.SyncStatus, syncErr string) error {
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("no such submission %s", id)
	}
	sub.CRMSyncStatus = status
	sub.CRMSyncError = syncErr
	return nil
}

func (m *memSubs) FindByApplicantEmail(_ context.Context, email string) ([]models.Submission, error) {
	var out []models.Submission
	for _, sub := range m.subs {
		if sub.ApplicantEmail == email {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func newTestProcessor() (*Processor, *Verifier, *memEvents, *memSubs) {
	verifier := NewVerifier("test-secret")
	events := newMemEvents()
	subs := &memSubs{subs: map[string]*models.Submission{
		"sub-1": {ID: "sub-1", ApplicantEmail: "dana@example.com", CRMSyncStatus: models.SyncPending},
	}}
	return NewProcessor(verifier, events, subs, logger.NewNoOpLogger()), verifier, events, subs
}

func signedBody(t *testing.T, v *Verifier, envelope map[string]interface{}) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return body, v.Sign(body)
}

func syncedEnvelope(eventID string) map[string]interface{} {
	return map[string]interface{}{
		"eventId":    eventID,
		"eventType":  "submission.synced",
		"occurredAt": "2026-03-14T10:00:00Z",
		"submission": map[string]interface{}{"submissionId": "sub-1", "crmId": "crm-9"},
	}
}

func TestProcessRejectsBadSignature(t *testing.T) {
	p, v, events, _ := newTestProcessor()
	body, _ := signedBody(t, v, syncedEnvelope("evt-a"))

	_, err := p.Process(context.Background(), body, "sha256=deadbeef")

	require.Error(t, err)
	assert.Equal(t, errors.KindTerminal, errors.KindOf(err))
	assert.Empty(t, events.byExternal)
}

func TestProcessRejectsSchemaViolations(t *testing.T) {
	p, v, events, _ := newTestProcessor()
	body, sig := signedBody(t, v, map[string]interface{}{
		"eventId":    "evt-b",
		"eventType":  "submission.synced",
		"occurredAt": "2026-03-14T10:00:00Z",
		// missing required submission block for this event type
	})

	_, err := p.Process(context.Background(), body, sig)

	require.Error(t, err)
	verr, ok := errors.AsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, verr.Issues)
	assert.Empty(t, events.byExternal)
}

func TestProcessReconcilesSyncedEvent(t *testing.T) {
	p, v, events, subs := newTestProcessor()
	body, sig := signedBody(t, v, syncedEnvelope("evt-c"))

	receipt, err := p.Process(context.Background(), body, sig)

	require.NoError(t, err)
	assert.True(t, receipt.Processed)
	assert.False(t, receipt.Duplicate)
	assert.Equal(t, models.SyncSynced, subs.subs["sub-1"].CRMSyncStatus)
	assert.True(t, events.processed["evt-1"])
}

func TestProcessErroredEventRecordsDetail(t *testing.T) {
	p, v, _, subs := newTestProcessor()
	body, sig := signedBody(t, v, map[string]interface{}{
		"eventId":    "evt-d",
		"eventType":  "submission.errored",
		"occurredAt": "2026-03-14T10:00:00Z",
		"submission": map[string]interface{}{"submissionId": "sub-1", "error": "duplicate contact"},
	})

	receipt, err := p.Process(context.Background(), body, sig)

	require.NoError(t, err)
	assert.True(t, receipt.Processed)
	assert.Equal(t, models.SyncError, subs.subs["sub-1"].CRMSyncStatus)
	assert.Equal(t, "duplicate contact", subs.subs["sub-1"].CRMSyncError)
}

func TestProcessRedeliveryIsIgnored(t *testing.T) {
	p, v, events, subs := newTestProcessor()
	body, sig := signedBody(t, v, syncedEnvelope("evt-e"))

	first, err := p.Process(context.Background(), body, sig)
	require.NoError(t, err)
	require.True(t, first.Processed)

	second, err := p.Process(context.Background(), body, sig)

	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Processed)
	assert.Len(t, events.byExternal, 1)
	assert.Equal(t, models.SyncSynced, subs.subs["sub-1"].CRMSyncStatus)
}

func TestProcessUnknownEventTypePersistedAndIgnored(t *testing.T) {
	p, v, events, _ := newTestProcessor()
	body, sig := signedBody(t, v, map[string]interface{}{
		"eventId":    "evt-f",
		"eventType":  "contact.merged",
		"occurredAt": "2026-03-14T10:00:00Z",
	})

	receipt, err := p.Process(context.Background(), body, sig)

	require.NoError(t, err)
	assert.True(t, receipt.Processed)
	assert.Equal(t, models.EventUnknown, receipt.EventType)
	require.Len(t, events.byExternal, 1)
	assert.Equal(t, models.EventUnknown, events.byExternal["evt-f"].EventType)
}

func TestProcessSyncEventForUnknownSubmission(t *testing.T) {
	p, v, _, _ := newTestProcessor()
	envelope := syncedEnvelope("evt-g")
	envelope["submission"].(map[string]interface{})["submissionId"] = "sub-missing"
	body, sig := signedBody(t, v, envelope)

	receipt, err := p.Process(context.Background(), body, sig)

	require.NoError(t, err)
	assert.True(t, receipt.Processed)
}

func TestVerifierAcceptsPrefixedSignature(t *testing.T) {
	v := NewVerifier("test-secret")
	body := []byte(`{"x":1}`)

	assert.True(t, v.Verify(body, "sha256="+v.Sign(body)))
	assert.True(t, v.Verify(body, v.Sign(body)))
	assert.False(t, v.Verify(body, "not-hex!"))
	assert.False(t, v.Verify([]byte(`{"x":2}`), v.Sign(body)))
}
