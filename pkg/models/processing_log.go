package models

import "time"

// ProcessingStatus lifecycle status of a processing log entry
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingSuccess    ProcessingStatus = "success"
	ProcessingFailed     ProcessingStatus = "failed"
	ProcessingException  ProcessingStatus = "exception"
)

// IsTerminal reports whether no further transition is allowed
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case ProcessingSuccess, ProcessingFailed, ProcessingException:
		return true
	default:
		return false
	}
}

// ProcessingLog records one attachment processing attempt
type ProcessingLog struct {
	ID             int64            `db:"id" json:"id"`
	OrderID        *int64           `db:"order_id" json:"orderId,omitempty"`
	EmailID        string           `db:"email_id" json:"emailId"` // "<configID>-<uid>"
	EmailSubject   string           `db:"email_subject" json:"emailSubject"`
	EmailFrom      string           `db:"email_from" json:"emailFrom"`
	AttachmentName string           `db:"attachment_name" json:"attachmentName"`
	AttachmentType AttachmentType   `db:"attachment_type" json:"attachmentType"`
	Status         ProcessingStatus `db:"status" json:"status"`
	ErrorMessage   *string          `db:"error_message" json:"errorMessage,omitempty"`
	AIResponse     *string          `db:"ai_response" json:"aiResponse,omitempty"` // Serialized ExtractionResult
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}
