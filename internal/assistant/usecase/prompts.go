package usecase

import (
	"fmt"
	"strings"

	"friendlymail-backend/internal/assistant/domain"
	emaildomain "friendlymail-backend/internal/email/domain"
)

const (
	classifyBodyLimit = 2000
	generateBodyLimit = 1500
)

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (none specified)"
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

func intentOptions() string {
	names := make([]string, len(domain.IntentTypes))
	for i, t := range domain.IntentTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func buildClassifySystemPrompt(role *domain.Role) string {
	return fmt.Sprintf(`You are an AI that analyzes incoming emails on behalf of the person described below.

ROLE: %s
DESCRIPTION: %s

TOPICS YOU MAY RESPOND TO:
%s

TOPICS YOU MUST NOT RESPOND TO:
%s

RULES (apply in order):
1. If the email topic is not in the allowed list, decision MUST be "escalate".
2. If the email topic is in the forbidden list, decision MUST be "escalate".
3. Use "respond" only when confidence is greater than %.1f AND the topic is allowed.
4. Use "ignore" only for spam or messages that need no reply.

Return ONLY a JSON object with exactly these fields:
{"intent_type": string, "confidence": number between 0 and 1, "decision": string, "reason": string}

EXAMPLE OUTPUT:
{"intent_type": "exam_info", "confidence": 0.9, "decision": "respond", "reason": "Student asking about exam date"}

INTENT OPTIONS: %s
DECISION OPTIONS: respond, escalate, ignore`,
		role.Name,
		role.ContextDescription,
		bullets(role.AllowTopics()),
		bullets(role.DenyTopics()),
		domain.RespondConfidenceThreshold,
		intentOptions(),
	)
}

func buildClassifyUserPrompt(email *emaildomain.Email) string {
	return fmt.Sprintf(`ANALYZE THIS EMAIL:

FROM: %s
SUBJECT: %s
DATE: %s

CONTENT:
%s

Analyze the intent and decide if this should be automatically responded to or escalated.`,
		email.Sender,
		email.Subject,
		email.ReceivedAt.Format("2006-01-02 15:04 MST"),
		truncate(email.PlainText(), classifyBodyLimit),
	)
}

func buildGenerateSystemPrompt(role *domain.Role, rule *domain.TemporalRule) string {
	var ruleInfo string
	if rule != nil {
		ruleInfo = fmt.Sprintf(`
SPECIFIC RULE MATCHED: %s
RULE DESCRIPTION: %s
RULE TEMPLATE: %s
`, rule.Name, rule.Description, rule.ResponseTemplate)
	}

	return fmt.Sprintf(`You are an AI assistant responding to emails on behalf of:

ROLE: %s
CONTEXT: %s
%s
GUIDELINES:
- Be helpful, professional, and concise
- Use the information provided in the context
- If a rule template is provided, use it as a base but adapt it to the specific question rather than copying it
- Keep responses under 200 words unless more detail is needed
- Sign with the role name: %s

Write only the body of the reply.`,
		role.Name,
		role.ContextDescription,
		ruleInfo,
		role.Name,
	)
}

func buildGenerateUserPrompt(email *emaildomain.Email) string {
	return fmt.Sprintf(`Generate a response to this email:

FROM: %s
SUBJECT: %s

CONTENT:
%s`,
		email.Sender,
		email.Subject,
		truncate(email.PlainText(), generateBodyLimit),
	)
}
