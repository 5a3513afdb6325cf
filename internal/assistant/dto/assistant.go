package dto

import (
	"time"

	"friendlymail-backend/internal/assistant/domain"
)

type RoleRequest struct {
	Name                string                 `json:"name" binding:"required"`
	ContextDescription  string                 `json:"context_description"`
	CanRespondTopics    string                 `json:"can_respond_topics" binding:"required"`
	CannotRespondTopics string                 `json:"cannot_respond_topics"`
	AllowedDomains      string                 `json:"allowed_domains"`
	AutoSend            bool                   `json:"auto_send"`
	ComplexityLevel     domain.ComplexityLevel `json:"complexity_level"`
}

// ToRole copies the request onto a role owned by userID.
func (r *RoleRequest) ToRole(userID string) *domain.Role {
	return &domain.Role{
		UserID:              userID,
		Name:                r.Name,
		ContextDescription:  r.ContextDescription,
		CanRespondTopics:    r.CanRespondTopics,
		CannotRespondTopics: r.CannotRespondTopics,
		AllowedDomains:      r.AllowedDomains,
		AutoSend:            r.AutoSend,
		ComplexityLevel:     r.ComplexityLevel,
	}
}

type RolesResponse struct {
	Roles      []*domain.Role `json:"roles"`
	ActiveRole *domain.Role   `json:"active_role"`
}

type RuleRequest struct {
	Name             string            `json:"name" binding:"required"`
	Description      string            `json:"description"`
	StartDate        time.Time         `json:"start_date" binding:"required"`
	EndDate          time.Time         `json:"end_date" binding:"required"`
	Keywords         string            `json:"keywords"`
	EmailFilters     string            `json:"email_filters"`
	ResponseTemplate string            `json:"response_template"`
	Status           domain.RuleStatus `json:"status"`
	Priority         int               `json:"priority"`
}

func (r *RuleRequest) ToRule() *domain.TemporalRule {
	return &domain.TemporalRule{
		Name:             r.Name,
		Description:      r.Description,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		Keywords:         r.Keywords,
		EmailFilters:     r.EmailFilters,
		ResponseTemplate: r.ResponseTemplate,
		Status:           r.Status,
		Priority:         r.Priority,
	}
}

type RulesResponse struct {
	Rules []*domain.TemporalRule `json:"rules"`
}

type ResponsesResponse struct {
	Responses []*domain.AIResponse `json:"responses"`
	Total     int64                `json:"total"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

type RejectRequest struct {
	Feedback string `json:"feedback"`
}

type EditResponseRequest struct {
	ResponseSubject string `json:"response_subject"`
	ResponseText    string `json:"response_text" binding:"required"`
}

type ProcessRequest struct {
	Limit int `json:"limit"`
}
