package models

import "time"

// DocType distinguishes the cover letter from the grounds document.
type DocType string

const (
	DocTypeCover   DocType = "cover"
	DocTypeGrounds DocType = "grounds"
)

// DocumentStatus is the per-document lifecycle, advanced independently of
// the owning submission because a dual-track submission has two documents
// moving on different schedules.
type DocumentStatus string

const (
	DocCreated     DocumentStatus = "created"
	DocUserEditing DocumentStatus = "user_editing"
	DocFinalized   DocumentStatus = "finalized"
	DocSubmitted   DocumentStatus = "submitted"
	DocApproved    DocumentStatus = "approved"
)

var docOrder = map[DocumentStatus]int{
	DocCreated:     0,
	DocUserEditing: 1,
	DocFinalized:   2,
	DocSubmitted:   3,
	DocApproved:    4,
}

// CanTransition enforces forward movement and the finalized-before-
// submitted rule.
func (s DocumentStatus) CanTransition(to DocumentStatus) bool {
	from, ok := docOrder[s]
	if !ok {
		return false
	}
	toIdx, ok := docOrder[to]
	if !ok {
		return false
	}
	if to == DocSubmitted && s != DocFinalized {
		return false
	}
	return toIdx > from
}

// Document is a generated artifact tied to exactly one submission.
type Document struct {
	ID                string         `json:"id"`
	SubmissionID      string         `json:"submissionId"`
	DocType           DocType        `json:"docType"`
	RenderRef         string         `json:"renderRef,omitempty"`
	ViewerURL         string         `json:"viewerUrl,omitempty"`
	PDFURL            string         `json:"pdfUrl,omitempty"`
	Status            DocumentStatus `json:"status"`
	ReviewStartedAt   *time.Time     `json:"reviewStartedAt,omitempty"`
	ReviewCompletedAt *time.Time     `json:"reviewCompletedAt,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}
