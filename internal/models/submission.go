package models

import "time"

// Pathway is the delivery mode for a submission.
type Pathway string

const (
	PathwayDirect Pathway = "direct" // finalize and deliver immediately
	PathwayReview Pathway = "review" // applicant-gated
	PathwayDraft  Pathway = "draft"  // applicant-gated, with info pack
)

func (p Pathway) Valid() bool {
	switch p {
	case PathwayDirect, PathwayReview, PathwayDraft:
		return true
	}
	return false
}

// RequiresConfirmation reports whether the applicant must explicitly
// approve before delivery.
func (p Pathway) RequiresConfirmation() bool {
	return p != PathwayDirect
}

// Track selects the grounds template variant for dual-track projects.
type Track string

const (
	TrackSingle        Track = "single"
	TrackComprehensive Track = "comprehensive"
	TrackFollowup      Track = "followup"
)

func (t Track) Valid() bool {
	switch t {
	case TrackSingle, TrackComprehensive, TrackFollowup:
		return true
	}
	return false
}

// DualTrack reports whether the submission carries a second,
// track-specific grounds document.
func (t Track) DualTrack() bool {
	return t == TrackComprehensive || t == TrackFollowup
}

// SubmissionStatus is the submission lifecycle state.
type SubmissionStatus string

const (
	StatusNew             SubmissionStatus = "NEW"
	StatusSurveyCompleted SubmissionStatus = "SURVEY_COMPLETED"
	StatusReadyForReview  SubmissionStatus = "READY_FOR_REVIEW"
	StatusUserEditing     SubmissionStatus = "USER_EDITING"
	StatusFinalizing      SubmissionStatus = "FINALIZING"
	StatusSubmitted       SubmissionStatus = "SUBMITTED"
	StatusComplete        SubmissionStatus = "COMPLETE"
	StatusRetrying        SubmissionStatus = "RETRYING"
	StatusFailed          SubmissionStatus = "FAILED"
)

// statusOrder assigns each forward-lifecycle state a monotonic index.
// RETRYING and FAILED sit outside the forward ordering.
var statusOrder = map[SubmissionStatus]int{
	StatusNew:             0,
	StatusSurveyCompleted: 1,
	StatusReadyForReview:  2,
	StatusUserEditing:     3,
	StatusFinalizing:      4,
	StatusSubmitted:       5,
	StatusComplete:        6,
}

// Index returns the forward ordering index for a status, and whether the
// status participates in the forward ordering at all.
func (s SubmissionStatus) Index() (int, bool) {
	i, ok := statusOrder[s]
	return i, ok
}

// Terminal reports whether a submission in this state can never advance.
// FAILED is terminal only after retry exhaustion; the tracker allows
// FAILED -> RETRYING while a retry operation is still live.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusComplete
}

// CanTransition enforces the forward-only ordering: the index never
// decreases except into RETRYING/FAILED, and out of RETRYING back to the
// stage being re-attempted.
func (s SubmissionStatus) CanTransition(to SubmissionStatus) bool {
	if s == to {
		return false
	}
	if to == StatusRetrying || to == StatusFailed {
		return s != StatusComplete
	}
	switch s {
	case StatusRetrying, StatusFailed:
		// Recovery loop re-enters the prior forward stage.
		_, ok := to.Index()
		return ok
	}
	from, ok := s.Index()
	if !ok {
		return false
	}
	toIdx, ok := to.Index()
	if !ok {
		return false
	}
	return toIdx > from
}

// SyncStatus is the CRM reconciliation state for a submission.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// Submission is one citizen objection instance. Owned exclusively by the
// workflow engine; mutated only through tracker transitions; never
// hard-deleted.
type Submission struct {
	ID                string           `json:"id"`
	ProjectID         string           `json:"projectId"`
	ApplicantName     string           `json:"applicantName"`
	ApplicantEmail    string           `json:"applicantEmail"`
	ApplicantPhone    string           `json:"applicantPhone,omitempty"`
	ResidentialAddr   string           `json:"residentialAddress"`
	PostalAddr        string           `json:"postalAddress,omitempty"`
	PostalSameAsHome  bool             `json:"postalSameAsResidential"`
	SiteAddress       string           `json:"siteAddress"`
	ApplicationNumber string           `json:"applicationNumber"`
	Pathway           Pathway          `json:"pathway"`
	Track             Track            `json:"track"`
	Status            SubmissionStatus `json:"status"`
	ReviewDeadline    *time.Time       `json:"reviewDeadline,omitempty"`
	GroundsText       string           `json:"groundsText,omitempty"`
	CRMSyncStatus     SyncStatus       `json:"crmSyncStatus"`
	CRMSyncError      string           `json:"crmSyncError,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// PostalAddress resolves the mailing address from the explicit intake flag.
func (s *Submission) PostalAddress() string {
	if s.PostalSameAsHome || s.PostalAddr == "" {
		return s.ResidentialAddr
	}
	return s.PostalAddr
}

// StatusAudit is an append-only record of an accepted transition.
type StatusAudit struct {
	ID           int64            `json:"id"`
	SubmissionID string           `json:"submissionId"`
	Stage        string           `json:"stage"`
	Status       SubmissionStatus `json:"status"`
	Detail       string           `json:"detail,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}
