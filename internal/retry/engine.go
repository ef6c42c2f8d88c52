// Package retry is the durable recovery engine. Transient integration
// failures become retry_operations rows; a poller re-claims due rows,
// re-invokes the failed step through a registered handler, and walks the
// submission back into its forward lifecycle on success. Exhausted
// operations fail the submission and alert an operator exactly once.
package retry

import (
	"context"
	"fmt"
	"time"

	"objection-engine/internal/common/config"
	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/common/metrics"
	"objection-engine/internal/models"
)

// OpStore is the durable persistence for retry operations.
type OpStore interface {
	Upsert(ctx context.Context, op *models.RetryOperation) error
	Get(ctx context.Context, id string) (*models.RetryOperation, error)
	FindActive(ctx context.Context, submissionID string, opType models.OperationType) (*models.RetryOperation, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.RetryOperation, error)
	Release(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, lastError string) error
	Delete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, lastError string) error
	MarkAdminNotified(ctx context.Context, id string) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Statistics(ctx context.Context, since time.Time) ([]models.RetryStat, error)
}

// StatusTracker is the slice of the tracker the engine uses to move
// submissions in and out of the recovery loop.
type StatusTracker interface {
	Current(ctx context.Context, submissionID string) (*models.Submission, error)
	Transition(ctx context.Context, submissionID string, fromGuard, to models.SubmissionStatus, detail string) error
}

// HealthView answers whether a dependency is fit to receive a retry.
type HealthView interface {
	Allow(component string) bool
}

// Notifier delivers the exhaustion alert. The engine's database flag is
// the primary exactly-once guard; the notifier may add its own.
type Notifier interface {
	AlertExhausted(ctx context.Context, op *models.RetryOperation) error
}

// Handler re-executes the failed step for one operation. On success the
// handler is responsible for advancing the submission; the engine only
// deletes the operation row.
type Handler func(ctx context.Context, op *models.RetryOperation) error

type Engine struct {
	store    OpStore
	tracker  StatusTracker
	health   HealthView
	notifier Notifier
	backoff  *Backoff
	cfg      config.RetryConfig
	handlers map[models.OperationType]Handler
	logger   logger.Logger
}

func NewEngine(store OpStore, tracker StatusTracker, health HealthView, notifier Notifier, cfg config.RetryConfig, log logger.Logger) *Engine {
	return &Engine{
		store:    store,
		tracker:  tracker,
		health:   health,
		notifier: notifier,
		backoff:  NewBackoff(cfg.BaseBackoff, cfg.MaxBackoff),
		cfg:      cfg,
		handlers: make(map[models.OperationType]Handler),
		logger:   log.WithFields(map[string]interface{}{"component": "retry-engine"}),
	}
}

// Register installs the handler for an operation type. Must be called
// before the poller starts.
func (e *Engine) Register(opType models.OperationType, handler Handler) {
	e.handlers[opType] = handler
}

// Schedule records a transient failure as a durable retry operation and
// parks the submission in RETRYING. Scheduling the same
// (submission, type) pair again bumps the existing row instead of
// creating a second one.
func (e *Engine) Schedule(ctx context.Context, submissionID string, opType models.OperationType, cause error) error {
	if !opType.Valid() {
		return errors.NewFieldValidationError("operationType", fmt.Sprintf("unknown operation type %q", opType))
	}

	existing, err := e.store.FindActive(ctx, submissionID, opType)
	if err != nil {
		return err
	}

	attempt := 1
	if existing != nil {
		attempt = existing.AttemptCount + 1
	}

	if existing != nil && existing.Exhausted() {
		return e.exhaust(ctx, existing, cause.Error())
	}

	op := &models.RetryOperation{
		OperationType: opType,
		SubmissionID:  submissionID,
		AttemptCount:  attempt,
		MaxAttempts:   e.cfg.MaxAttempts,
		NextRetryAt:   time.Now().UTC().Add(e.backoff.Delay(attempt)),
		Status:        models.RetryPending,
		LastError:     cause.Error(),
	}
	if err := e.store.Upsert(ctx, op); err != nil {
		return err
	}

	metrics.RetryScheduled.WithLabelValues(string(opType)).Inc()
	e.logger.Info("scheduled retry", map[string]interface{}{
		"submissionId":  submissionID,
		"operationType": opType,
		"attempt":       attempt,
		"nextRetryAt":   op.NextRetryAt,
	})

	if opType.Blocking() {
		e.parkSubmission(ctx, submissionID, opType, cause)
	}
	return nil
}

// RunDue claims every due operation and runs it. Called on each poller
// tick and after an operator-forced retry.
func (e *Engine) RunDue(ctx context.Context) error {
	ops, err := e.store.ClaimDue(ctx, time.Now().UTC(), e.cfg.BatchSize)
	if err != nil {
		return err
	}
	for i := range ops {
		e.runOp(ctx, &ops[i])
	}
	return nil
}

func (e *Engine) runOp(ctx context.Context, op *models.RetryOperation) {
	log := e.logger.WithFields(map[string]interface{}{
		"operationId":   op.ID,
		"submissionId":  op.SubmissionID,
		"operationType": op.OperationType,
		"attempt":       op.AttemptCount,
	})

	handler, ok := e.handlers[op.OperationType]
	if !ok {
		log.Error("no handler registered, failing operation", nil)
		_ = e.store.MarkFailed(ctx, op.ID, "no handler registered")
		return
	}

	// An unhealthy dependency would burn an attempt on a near-certain
	// failure; defer without consuming one.
	if !e.health.Allow(op.OperationType.Component()) {
		metrics.RetrySkippedUnhealthy.WithLabelValues(string(op.OperationType)).Inc()
		deferUntil := time.Now().UTC().Add(e.backoff.Delay(op.AttemptCount))
		if err := e.store.Release(ctx, op.ID, op.AttemptCount, deferUntil, op.LastError); err != nil {
			log.WithError(err).Error("failed to defer unhealthy retry", nil)
		}
		log.Warn("dependency unhealthy, retry deferred", map[string]interface{}{
			"component":  op.OperationType.Component(),
			"deferUntil": deferUntil,
		})
		return
	}

	err := handler(ctx, op)
	if err == nil {
		if delErr := e.store.Delete(ctx, op.ID); delErr != nil {
			log.WithError(delErr).Error("retry succeeded but row deletion failed", nil)
			return
		}
		log.Info("retry succeeded", nil)
		return
	}

	if !errors.IsRetryable(err) {
		_ = e.exhaust(ctx, op, err.Error())
		return
	}

	next := op.AttemptCount + 1
	if next >= op.MaxAttempts {
		op.AttemptCount = next
		_ = e.exhaust(ctx, op, err.Error())
		return
	}

	nextAt := time.Now().UTC().Add(e.backoff.Delay(next))
	if relErr := e.store.Release(ctx, op.ID, next, nextAt, err.Error()); relErr != nil {
		log.WithError(relErr).Error("failed to reschedule retry", nil)
		return
	}
	log.Warn("retry failed, rescheduled", map[string]interface{}{
		"nextAttempt": next,
		"nextRetryAt": nextAt,
	})
}

// RetryNow forces an operation due immediately and runs the claim loop.
// Failed and cancelled operations are resurrected to pending first.
func (e *Engine) RetryNow(ctx context.Context, id string) (*models.RetryOperation, error) {
	op, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, errors.NewFieldValidationError("id", fmt.Sprintf("retry operation %s not found", id))
	}
	if op.Status == models.RetryInFlight {
		return nil, errors.NewConflictError("retry operation", id, string(models.RetryPending), string(op.Status))
	}

	now := time.Now().UTC()
	if err := e.store.Release(ctx, id, op.AttemptCount, now, op.LastError); err != nil {
		return nil, err
	}
	e.logger.Info("operator forced retry", map[string]interface{}{
		"operationId":  id,
		"submissionId": op.SubmissionID,
	})
	if err := e.RunDue(ctx); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, id)
}

// CancelOp suppresses a pending retry and fails the submission, with an
// audit detail naming the operator action.
func (e *Engine) CancelOp(ctx context.Context, id string) error {
	op, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if op == nil {
		return errors.NewFieldValidationError("id", fmt.Sprintf("retry operation %s not found", id))
	}

	ok, err := e.store.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewConflictError("retry operation", id, string(models.RetryPending), string(op.Status))
	}

	if op.OperationType.Blocking() {
		e.failSubmission(ctx, op.SubmissionID, "retry cancelled by operator")
	}
	e.logger.Warn("retry operation cancelled", map[string]interface{}{
		"operationId":  id,
		"submissionId": op.SubmissionID,
	})
	return nil
}

// Statistics returns the per-type aggregates over a trailing window.
func (e *Engine) Statistics(ctx context.Context, window time.Duration) ([]models.RetryStat, error) {
	return e.store.Statistics(ctx, time.Now().UTC().Add(-window))
}

// exhaust terminally fails the operation and its submission, and emits
// the operator alert at most once across all workers.
func (e *Engine) exhaust(ctx context.Context, op *models.RetryOperation, lastError string) error {
	if err := e.store.MarkFailed(ctx, op.ID, lastError); err != nil {
		return err
	}
	metrics.RetryExhausted.WithLabelValues(string(op.OperationType)).Inc()

	if op.OperationType.Blocking() {
		e.failSubmission(ctx, op.SubmissionID, fmt.Sprintf("%s exhausted after %d attempts: %s", op.OperationType, op.AttemptCount, lastError))
	}

	flipped, err := e.store.MarkAdminNotified(ctx, op.ID)
	if err != nil {
		return err
	}
	if flipped {
		if alertErr := e.notifier.AlertExhausted(ctx, op); alertErr != nil {
			e.logger.WithError(alertErr).Error("exhaustion alert failed", map[string]interface{}{
				"operationId": op.ID,
			})
		}
	}
	return nil
}

func (e *Engine) parkSubmission(ctx context.Context, submissionID string, opType models.OperationType, cause error) {
	cur, err := e.tracker.Current(ctx, submissionID)
	if err != nil || cur == nil || cur.Status == models.StatusRetrying {
		return
	}
	detail := fmt.Sprintf("%s failed transiently: %s", opType, cause.Error())
	if err := e.tracker.Transition(ctx, submissionID, cur.Status, models.StatusRetrying, detail); err != nil && !errors.IsConflict(err) {
		e.logger.WithError(err).Warn("could not park submission in RETRYING", map[string]interface{}{
			"submissionId": submissionID,
		})
	}
}

func (e *Engine) failSubmission(ctx context.Context, submissionID, detail string) {
	cur, err := e.tracker.Current(ctx, submissionID)
	if err != nil || cur == nil || cur.Status == models.StatusFailed {
		return
	}
	if err := e.tracker.Transition(ctx, submissionID, cur.Status, models.StatusFailed, detail); err != nil && !errors.IsConflict(err) {
		e.logger.WithError(err).Warn("could not fail submission", map[string]interface{}{
			"submissionId": submissionID,
		})
	}
}
