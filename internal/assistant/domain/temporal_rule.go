package domain

import (
	"strings"
	"time"
)

type RuleStatus string

const (
	RuleStatusDraft     RuleStatus = "draft"
	RuleStatusActive    RuleStatus = "active"
	RuleStatusScheduled RuleStatus = "scheduled"
	RuleStatusExpired   RuleStatus = "expired"
	RuleStatusDisabled  RuleStatus = "disabled"
)

// Valid reports whether s is one of the known statuses.
func (s RuleStatus) Valid() bool {
	switch s {
	case RuleStatusDraft, RuleStatusActive, RuleStatusScheduled, RuleStatusExpired, RuleStatusDisabled:
		return true
	}
	return false
}

// TemporalRule is a time-boxed keyword-triggered response policy. Status is
// set by the operator and is never derived from StartDate/EndDate.
type TemporalRule struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	RoleID           *string    `json:"role_id,omitempty" gorm:"index"`
	ContextID        *string    `json:"context_id,omitempty" gorm:"index"`
	Name             string     `json:"name" gorm:"not null;size:200"`
	Description      string     `json:"description" gorm:"type:text"`
	StartDate        time.Time  `json:"start_date" gorm:"not null"`
	EndDate          time.Time  `json:"end_date" gorm:"not null"`
	Keywords         string     `json:"keywords" gorm:"type:text"`
	EmailFilters     string     `json:"email_filters" gorm:"type:text"`
	ResponseTemplate string     `json:"response_template" gorm:"type:text"`
	Status           RuleStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Priority         int        `json:"priority" gorm:"not null"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Role    *Role      `json:"-" gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	Context *AIContext `json:"-" gorm:"foreignKey:ContextID;constraint:OnDelete:CASCADE"`
}

func (TemporalRule) TableName() string {
	return "temporal_rules"
}

// ApplyDefaults fills status and priority when unset.
func (r *TemporalRule) ApplyDefaults() {
	if r.Status == "" {
		r.Status = RuleStatusDraft
	}
	if r.Priority == 0 {
		r.Priority = 1
	}
}

// KeywordList splits Keywords on commas, trimmed and lower-cased.
func (r *TemporalRule) KeywordList() []string {
	var out []string
	for _, kw := range strings.Split(r.Keywords, ",") {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// Eligible reports whether the rule may be matched at now.
func (r *TemporalRule) Eligible(now time.Time) bool {
	return r.Status == RuleStatusActive && !now.Before(r.StartDate) && !now.After(r.EndDate)
}

// Matches reports whether any keyword appears in content, which must already
// be lower-cased.
func (r *TemporalRule) Matches(content string) bool {
	for _, kw := range r.KeywordList() {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// RuleScope identifies whose rules to match: a role, or a legacy context.
type RuleScope struct {
	RoleID    string
	ContextID string
}

// ScopeFor returns the rule scope for role.
func ScopeFor(role *Role) RuleScope {
	if role.IsLegacy() {
		return RuleScope{ContextID: role.LegacyContextID}
	}
	return RuleScope{RoleID: role.ID}
}
