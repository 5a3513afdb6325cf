package domain

import (
	"strings"
	"time"
)

type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityMedium   ComplexityLevel = "medium"
	ComplexityAdvanced ComplexityLevel = "advanced"
)

// Role is one persona the assistant can adopt for a user. At most one role
// per user is active; the partial unique index backs the transactional
// activation in the repository.
type Role struct {
	ID                  string          `json:"id" gorm:"primaryKey"`
	UserID              string          `json:"user_id" gorm:"not null;uniqueIndex:idx_role_user_name;uniqueIndex:idx_role_user_active,where:is_active"`
	Name                string          `json:"name" gorm:"not null;size:100;uniqueIndex:idx_role_user_name"`
	ContextDescription  string          `json:"context_description" gorm:"type:text"`
	CanRespondTopics    string          `json:"can_respond_topics" gorm:"type:text"`
	CannotRespondTopics string          `json:"cannot_respond_topics" gorm:"type:text"`
	AllowedDomains      string          `json:"allowed_domains" gorm:"type:text"`
	AutoSend            bool            `json:"auto_send" gorm:"not null"`
	IsActive            bool            `json:"is_active" gorm:"not null;index"`
	ComplexityLevel     ComplexityLevel `json:"complexity_level" gorm:"type:varchar(20);not null"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`

	// LegacyContextID is set only on roles adapted from an AIContext and
	// is never persisted.
	LegacyContextID string `json:"legacy_context_id,omitempty" gorm:"-"`
}

func (Role) TableName() string {
	return "ai_roles"
}

// IsLegacy reports whether r was adapted from a legacy context.
func (r *Role) IsLegacy() bool {
	return r.LegacyContextID != ""
}

// AllowTopics returns the non-empty lines of CanRespondTopics.
func (r *Role) AllowTopics() []string { return splitLines(r.CanRespondTopics) }

// DenyTopics returns the non-empty lines of CannotRespondTopics.
func (r *Role) DenyTopics() []string { return splitLines(r.CannotRespondTopics) }

// Domains returns the non-empty lines of AllowedDomains.
func (r *Role) Domains() []string { return splitLines(r.AllowedDomains) }

// AllowsSenderDomain applies the allowed-domain filter. An empty list allows
// everyone. An entry matches when, with its leading "@" removed, it is a
// case-sensitive substring of senderDomain.
func (r *Role) AllowsSenderDomain(senderDomain string) bool {
	domains := r.Domains()
	if len(domains) == 0 {
		return true
	}
	for _, d := range domains {
		if strings.Contains(senderDomain, strings.TrimPrefix(d, "@")) {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
