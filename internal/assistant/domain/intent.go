package domain

import (
	"strings"
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"
)

type IntentType string

const (
	IntentAcademicQuestion IntentType = "academic_question"
	IntentScheduleInquiry  IntentType = "schedule_inquiry"
	IntentExamInfo         IntentType = "exam_info"
	IntentAssignmentInfo   IntentType = "assignment_info"
	IntentTechnicalSupport IntentType = "technical_support"
	IntentPersonalMatter   IntentType = "personal_matter"
	IntentAdministrative   IntentType = "administrative"
	IntentEmergency        IntentType = "emergency"
	IntentSpam             IntentType = "spam"
	IntentUnclear          IntentType = "unclear"
)

// IntentTypes lists every accepted intent, in prompt order.
var IntentTypes = []IntentType{
	IntentAcademicQuestion,
	IntentScheduleInquiry,
	IntentExamInfo,
	IntentAssignmentInfo,
	IntentTechnicalSupport,
	IntentPersonalMatter,
	IntentAdministrative,
	IntentEmergency,
	IntentSpam,
	IntentUnclear,
}

// ParseIntentType folds unknown values to IntentUnclear.
func ParseIntentType(s string) IntentType {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range IntentTypes {
		if string(t) == s {
			return t
		}
	}
	return IntentUnclear
}

type Decision string

const (
	DecisionRespond  Decision = "respond"
	DecisionEscalate Decision = "escalate"
	DecisionIgnore   Decision = "ignore"
)

// ParseDecision folds unknown values to DecisionEscalate.
func ParseDecision(s string) Decision {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionRespond, DecisionIgnore, DecisionEscalate:
		return d
	}
	return DecisionEscalate
}

// RespondConfidenceThreshold is the confidence a respond decision must
// strictly exceed.
const RespondConfidenceThreshold = 0.7

// ConfidentEnough reports confidence > RespondConfidenceThreshold.
func ConfidentEnough(confidence float64) bool {
	return confidence > RespondConfidenceThreshold
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 || c != c {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Classification is what the classifier returns for one message.
type Classification struct {
	IntentType IntentType
	Confidence float64
	Decision   Decision
	Reason     string
	Latency    time.Duration
}

// EmailIntent is the single classification outcome of one email. It is
// created once and never updated.
type EmailIntent struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	EmailID          string     `json:"email_id" gorm:"not null;uniqueIndex"`
	IntentType       IntentType `json:"intent_type" gorm:"type:varchar(50);not null;index"`
	ConfidenceScore  float64    `json:"confidence_score" gorm:"not null"`
	Decision         Decision   `json:"ai_decision" gorm:"column:ai_decision;type:varchar(20);not null;index"`
	DecisionReason   string     `json:"decision_reason" gorm:"type:text"`
	MatchedRuleID    *string    `json:"matched_rule_id,omitempty" gorm:"index"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	ProcessedAt      time.Time  `json:"processed_at" gorm:"autoCreateTime"`

	Email       *emaildomain.Email `json:"email,omitempty" gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE"`
	MatchedRule *TemporalRule      `json:"matched_rule,omitempty" gorm:"foreignKey:MatchedRuleID;constraint:OnDelete:SET NULL"`
}

func (EmailIntent) TableName() string {
	return "email_intents"
}
