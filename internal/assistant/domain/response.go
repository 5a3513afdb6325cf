package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type ResponseStatus string

const (
	StatusGenerated       ResponseStatus = "generated"
	StatusPendingApproval ResponseStatus = "pending_approval"
	StatusApproved        ResponseStatus = "approved"
	StatusRejected        ResponseStatus = "rejected"
	StatusSent            ResponseStatus = "sent"
)

// ResponseStatuses lists every status, in lifecycle order.
var ResponseStatuses = []ResponseStatus{
	StatusGenerated,
	StatusPendingApproval,
	StatusApproved,
	StatusRejected,
	StatusSent,
}

// AIResponse is the draft reply for one respond outcome.
type AIResponse struct {
	ID                string         `json:"id" gorm:"primaryKey"`
	EmailIntentID     string         `json:"email_intent_id" gorm:"not null;uniqueIndex"`
	ResponseText      string         `json:"response_text" gorm:"type:text;not null"`
	ResponseSubject   string         `json:"response_subject" gorm:"size:200"`
	Status            ResponseStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	GeneratedAt       time.Time      `json:"generated_at" gorm:"autoCreateTime"`
	ApprovedAt        *time.Time     `json:"approved_at,omitempty"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	UserFeedback      string         `json:"user_feedback,omitempty" gorm:"type:text"`

	EmailIntent *EmailIntent `json:"-" gorm:"foreignKey:EmailIntentID;constraint:OnDelete:CASCADE"`
}

func (AIResponse) TableName() string {
	return "ai_responses"
}

func (r *AIResponse) CanApprove() bool { return r.Status == StatusPendingApproval }
func (r *AIResponse) CanReject() bool  { return r.Status == StatusPendingApproval }
func (r *AIResponse) CanResend() bool  { return r.Status == StatusApproved || r.Status == StatusSent }
func (r *AIResponse) CanEdit() bool {
	return r.Status == StatusPendingApproval || r.Status == StatusApproved
}

// TransitionError describes a refused status change. It unwraps to
// ErrInvalidTransition.
type TransitionError struct {
	Action string
	From   ResponseStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a response in status %q", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// MaxSubjectLength is the width of the response_subject column, in
// characters.
const MaxSubjectLength = 200

// ReplySubject prefixes subject with "Re: " unless it already has one. The
// result fits MaxSubjectLength.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if len(subject) < 3 || !strings.EqualFold(subject[:3], "re:") {
		subject = "Re: " + subject
	}
	if utf8.RuneCountInString(subject) <= MaxSubjectLength {
		return subject
	}
	return string([]rune(subject)[:MaxSubjectLength])
}
