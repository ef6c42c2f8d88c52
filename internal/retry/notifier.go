package retry

import (
	"context"
	"encoding/json"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"objection-engine/internal/common/logger"
	"objection-engine/internal/models"
)

// Publisher is the SNS surface the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// AlertLock is a best-effort distributed guard layered over the
// database admin_notified flag.
type AlertLock interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// SNSNotifier publishes exhaustion alerts to the operator topic.
type SNSNotifier struct {
	publisher Publisher
	topicARN  string
	lock      AlertLock
	logger    logger.Logger
}

func NewSNSNotifier(publisher Publisher, topicARN string, lock AlertLock, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{
		publisher: publisher,
		topicARN:  topicARN,
		lock:      lock,
		logger:    log.WithFields(map[string]interface{}{"component": "alert-notifier"}),
	}
}

type exhaustionAlert struct {
	OperationID   string               `json:"operationId"`
	SubmissionID  string               `json:"submissionId"`
	OperationType models.OperationType `json:"operationType"`
	Attempts      int                  `json:"attempts"`
	LastError     string               `json:"lastError"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

// AlertExhausted publishes one alert per exhausted operation. The redis
// lock covers the window where the database flag flipped but the
// process died before publishing; a lock error falls through to the
// publish since the database guard already passed.
func (n *SNSNotifier) AlertExhausted(ctx context.Context, op *models.RetryOperation) error {
	if n.lock != nil {
		acquired, err := n.lock.SetNX(ctx, "retry:alert:"+op.ID, "1", 24*time.Hour)
		if err != nil {
			n.logger.WithError(err).Warn("alert lock unavailable, publishing anyway", map[string]interface{}{
				"operationId": op.ID,
			})
		} else if !acquired {
			return nil
		}
	}

	payload, err := json.Marshal(exhaustionAlert{
		OperationID:   op.ID,
		SubmissionID:  op.SubmissionID,
		OperationType: op.OperationType,
		Attempts:      op.AttemptCount,
		LastError:     op.LastError,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	_, err = n.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(n.topicARN),
		Subject:  awssdk.String("Submission retry exhausted: " + op.SubmissionID),
		Message:  awssdk.String(string(payload)),
	})
	if err != nil {
		return err
	}

	n.logger.Info("exhaustion alert published", map[string]interface{}{
		"operationId":  op.ID,
		"submissionId": op.SubmissionID,
	})
	return nil
}
