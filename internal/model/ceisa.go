package model

import "time"

type CeisaStatus string

const (
	CeisaPending    CeisaStatus = "PENDING"
	CeisaSubmitted  CeisaStatus = "SUBMITTED"
	CeisaProcessing CeisaStatus = "PROCESSING"
	CeisaApproved   CeisaStatus = "APPROVED"
	CeisaRejected   CeisaStatus = "REJECTED"
	CeisaFailed     CeisaStatus = "FAILED"
)

// CeisaTerminal reports whether a status absorbs: once APPROVED, REJECTED or
// FAILED a record never transitions again.
func CeisaTerminal(s CeisaStatus) bool {
	return s == CeisaApproved || s == CeisaRejected || s == CeisaFailed
}

// CeisaStatusRecord tracks one customs submission from SUBMITTED through its
// terminal state. A document may be resubmitted, producing multiple records
// with distinct references.
type CeisaStatusRecord struct {
	CeisaReference  string      `json:"ceisa_reference" gorm:"primaryKey;size:64"`
	DocumentNumber  string      `json:"document_number" gorm:"size:64;index"`
	DocumentType    string      `json:"document_type" gorm:"size:32"`
	Status          CeisaStatus `json:"status" gorm:"size:16;index"`
	SubmissionDate  time.Time   `json:"submission_date" gorm:"index"`
	LastUpdated     time.Time   `json:"last_updated"`
	ApprovalDate    *time.Time  `json:"approval_date,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty" gorm:"type:text"`
	SubmittedBy     string      `json:"submitted_by" gorm:"size:64"`
}

func (CeisaStatusRecord) TableName() string {
	return "ceisa_status_records"
}
