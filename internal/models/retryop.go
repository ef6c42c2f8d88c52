package models

import "time"

// OperationType identifies which external call a retry operation
// re-invokes.
type OperationType string

const (
	OpAIGenerate OperationType = "ai_generate"
	OpDocRender  OperationType = "doc_render"
	OpEmailSend  OperationType = "email_send"
	OpCRMSync    OperationType = "crm_sync"
)

func (o OperationType) Valid() bool {
	switch o {
	case OpAIGenerate, OpDocRender, OpEmailSend, OpCRMSync:
		return true
	}
	return false
}

// Component returns the health-monitor component this operation depends
// on, used for the circuit heuristic.
func (o OperationType) Component() string {
	switch o {
	case OpAIGenerate:
		return "ai_provider"
	case OpDocRender:
		return "doc_render"
	case OpEmailSend:
		return "email"
	case OpCRMSync:
		return "crm"
	}
	return "unknown"
}

// Blocking reports whether a failure of this operation should hold the
// submission lifecycle. CRM sync is a side channel: the objection is
// already with the council whether or not the CRM heard about it.
func (o OperationType) Blocking() bool {
	return o != OpCRMSync
}

// RetryStatus is the lifecycle of a retry operation row.
type RetryStatus string

const (
	RetryPending   RetryStatus = "pending"
	RetryInFlight  RetryStatus = "in_flight"
	RetryFailed    RetryStatus = "failed"    // terminally, after exhaustion
	RetryCancelled RetryStatus = "cancelled" // operator cancel
)

// RetryOperation is a durable unit of retriable work. Deleted on
// success; marked failed on exhaustion.
type RetryOperation struct {
	ID            string        `json:"id"`
	OperationType OperationType `json:"operationType"`
	SubmissionID  string        `json:"submissionId"`
	AttemptCount  int           `json:"attemptCount"`
	MaxAttempts   int           `json:"maxAttempts"`
	NextRetryAt   time.Time     `json:"nextRetryAt"`
	Status        RetryStatus   `json:"status"`
	LastError     string        `json:"lastError,omitempty"`
	AdminNotified bool          `json:"adminNotified"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Exhausted reports whether the operation has no attempts left.
func (r *RetryOperation) Exhausted() bool {
	return r.AttemptCount >= r.MaxAttempts
}

// RetryStat is one row of the admin statistics aggregate.
type RetryStat struct {
	OperationType OperationType `json:"operationType"`
	Pending       int           `json:"pending"`
	InFlight      int           `json:"inFlight"`
	Failed        int           `json:"failed"`
	Cancelled     int           `json:"cancelled"`
	TotalAttempts int           `json:"totalAttempts"`
}
