package domain

import "time"

// AIContext is the single-persona configuration that predates roles. It is
// read only; RoleFromLegacyContext adapts it at the store boundary.
type AIContext struct {
	ID                  string          `json:"id" gorm:"primaryKey"`
	UserID              string          `json:"user_id" gorm:"uniqueIndex;not null"`
	Role                string          `json:"role" gorm:"size:100"`
	ContextDescription  string          `json:"context_description" gorm:"type:text"`
	ComplexityLevel     ComplexityLevel `json:"complexity_level" gorm:"type:varchar(20)"`
	CanRespondTopics    string          `json:"can_respond_topics" gorm:"type:text"`
	CannotRespondTopics string          `json:"cannot_respond_topics" gorm:"type:text"`
	AllowedDomains      string          `json:"allowed_domains" gorm:"type:text"`
	IsActive            bool            `json:"is_active" gorm:"not null"`
	AutoSend            bool            `json:"auto_send" gorm:"not null"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (AIContext) TableName() string {
	return "ai_contexts"
}

// RoleFromLegacyContext maps a legacy context onto a Role. The result is
// never written back; its ID is empty and LegacyContextID points at the
// source row so rules owned by the context can still be matched.
func RoleFromLegacyContext(c *AIContext) *Role {
	if c == nil {
		return nil
	}
	return &Role{
		UserID:              c.UserID,
		Name:                c.Role,
		ContextDescription:  c.ContextDescription,
		CanRespondTopics:    c.CanRespondTopics,
		CannotRespondTopics: c.CannotRespondTopics,
		AllowedDomains:      c.AllowedDomains,
		AutoSend:            c.AutoSend,
		IsActive:            c.IsActive,
		ComplexityLevel:     c.ComplexityLevel,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
		LegacyContextID:     c.ID,
	}
}
