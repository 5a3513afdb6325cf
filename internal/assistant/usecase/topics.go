package usecase

import (
	"fmt"
	"strings"

	"friendlymail-backend/internal/assistant/domain"
	emaildomain "friendlymail-backend/internal/email/domain"
)

// enforceTopics re-checks a respond decision against the role's topic lists
// and the confidence gate. Any other decision is returned unchanged.
func enforceTopics(c domain.Classification, role *domain.Role, email *emaildomain.Email) domain.Classification {
	if c.Decision != domain.DecisionRespond {
		return c
	}
	escalate := func(reason string) domain.Classification {
		c.Decision = domain.DecisionEscalate
		c.Reason = reason
		return c
	}

	if !domain.ConfidentEnough(c.Confidence) {
		return escalate(fmt.Sprintf("Confidence %.2f does not exceed %.1f", c.Confidence, domain.RespondConfidenceThreshold))
	}

	content := strings.ToLower(email.Subject + " " + email.PlainText())
	for _, topic := range role.DenyTopics() {
		if strings.Contains(content, strings.ToLower(topic)) {
			return escalate(fmt.Sprintf("Message mentions restricted topic %q", topic))
		}
	}

	allowed := role.AllowTopics()
	if len(allowed) == 0 {
		return c
	}
	for _, topic := range allowed {
		if strings.Contains(content, strings.ToLower(topic)) {
			return c
		}
	}
	return escalate("Message matches none of the allowed topics")
}
