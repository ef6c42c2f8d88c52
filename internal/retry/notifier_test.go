package retry

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/logger"
	"objection-engine/internal/models"
)

type capturingPublisher struct {
	inputs []*sns.PublishInput
}

func (p *capturingPublisher) Publish(_ context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	p.inputs = append(p.inputs, input)
	return &sns.PublishOutput{}, nil
}

type redisAlertLock struct{ client *redis.Client }

func (l redisAlertLock) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, value, expiration).Result()
}

func exhaustedOp() *models.RetryOperation {
	return &models.RetryOperation{
		ID:            "op-1",
		SubmissionID:  "sub-1",
		OperationType: models.OpEmailSend,
		AttemptCount:  5,
		MaxAttempts:   5,
		LastError:     "SES throttled",
	}
}

func TestAlertExhaustedPublishes(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectSetNX("retry:alert:op-1", "1", 24*time.Hour).SetVal(true)

	publisher := &capturingPublisher{}
	n := NewSNSNotifier(publisher, "arn:aws:sns:ap-southeast-2:123:alerts", redisAlertLock{client}, logger.NewNoOpLogger())

	err := n.AlertExhausted(context.Background(), exhaustedOp())

	require.NoError(t, err)
	require.Len(t, publisher.inputs, 1)
	assert.Contains(t, *publisher.inputs[0].Subject, "sub-1")
	assert.Contains(t, *publisher.inputs[0].Message, "SES throttled")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertExhaustedSkipsWhenLockHeld(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectSetNX("retry:alert:op-1", "1", 24*time.Hour).SetVal(false)

	publisher := &capturingPublisher{}
	n := NewSNSNotifier(publisher, "arn:aws:sns:ap-southeast-2:123:alerts", redisAlertLock{client}, logger.NewNoOpLogger())

	err := n.AlertExhausted(context.Background(), exhaustedOp())

	require.NoError(t, err)
	assert.Empty(t, publisher.inputs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertExhaustedPublishesOnLockError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectSetNX("retry:alert:op-1", "1", 24*time.Hour).SetErr(redis.ErrClosed)

	publisher := &capturingPublisher{}
	n := NewSNSNotifier(publisher, "arn:aws:sns:ap-southeast-2:123:alerts", redisAlertLock{client}, logger.NewNoOpLogger())

	err := n.AlertExhausted(context.Background(), exhaustedOp())

	require.NoError(t, err)
	assert.Len(t, publisher.inputs, 1)
}
