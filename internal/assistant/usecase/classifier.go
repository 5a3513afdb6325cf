package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	emaildomain "friendlymail-backend/internal/email/domain"
	"friendlymail-backend/pkg/ai"
	"friendlymail-backend/pkg/metrics"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

const classificationSchema = `{
  "type": "object",
  "required": ["intent_type", "confidence", "decision"],
  "properties": {
    "intent_type": {"type": "string"},
    "confidence": {"type": "number"},
    "decision": {"type": "string"},
    "reason": {"type": "string"}
  }
}`

var compiledClassificationSchema = jsonschema.MustCompileString("classification.json", classificationSchema)

type classificationPayload struct {
	IntentType string  `json:"intent_type"`
	Confidence float64 `json:"confidence"`
	Decision   string  `json:"decision"`
	Reason     string  `json:"reason"`
}

type llmClassifier struct {
	llm     ai.Completer
	timeout time.Duration
	log     *zap.Logger
}

// NewClassifier returns a Classifier backed by a language model.
func NewClassifier(llm ai.Completer, timeout time.Duration, log *zap.Logger) Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &llmClassifier{llm: llm, timeout: timeout, log: log.Named("classifier")}
}

func (c *llmClassifier) Classify(ctx context.Context, email *emaildomain.Email, role *domain.Role) domain.Classification {
	start := time.Now()

	result, err := c.classify(ctx, email, role)
	if err != nil {
		c.log.Warn("classification failed, escalating",
			zap.String("email_id", email.ID),
			zap.Error(err))
		result = domain.Classification{
			IntentType: domain.IntentUnclear,
			Confidence: 0,
			Decision:   domain.DecisionEscalate,
			Reason:     fmt.Sprintf("AI analysis failed: %v", err),
		}
	}
	result.Latency = time.Since(start)

	metrics.RecordClassification(string(result.Decision), string(result.IntentType))
	c.log.Info("email classified",
		zap.String("email_id", email.ID),
		zap.String("intent", string(result.IntentType)),
		zap.Float64("confidence", result.Confidence),
		zap.String("decision", string(result.Decision)),
		zap.Duration("latency", result.Latency))
	return result
}

func (c *llmClassifier) classify(ctx context.Context, email *emaildomain.Email, role *domain.Role) (domain.Classification, error) {
	if c.llm == nil {
		return domain.Classification{}, ai.ErrNoProvider
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.llm.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: buildClassifySystemPrompt(role),
		UserPrompt:   buildClassifyUserPrompt(email),
		JSONMode:     true,
		SchemaHint:   classificationSchema,
		Temperature:  0.1,
		MaxTokens:    500,
	})
	if err != nil {
		return domain.Classification{}, err
	}
	return parseClassification(text)
}

// parseClassification validates the model output and folds it onto the
// closed intent and decision sets.
func parseClassification(text string) (domain.Classification, error) {
	raw := ai.ExtractJSONObject(text)
	if raw == "" {
		return domain.Classification{}, fmt.Errorf("no JSON object in model output")
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.Classification{}, fmt.Errorf("decode model output: %w", err)
	}
	if err := compiledClassificationSchema.Validate(doc); err != nil {
		return domain.Classification{}, fmt.Errorf("model output does not match schema: %w", err)
	}

	var p classificationPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Classification{}, fmt.Errorf("decode model output: %w", err)
	}
	reason := p.Reason
	if reason == "" {
		reason = "AI analysis unclear"
	}
	return domain.Classification{
		IntentType: domain.ParseIntentType(p.IntentType),
		Confidence: domain.ClampConfidence(p.Confidence),
		Decision:   domain.ParseDecision(p.Decision),
		Reason:     reason,
	}, nil
}
