package interview

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/internal/resilience"
	"github.com/sells-group/forge-interview/pkg/anthropic"
)

const validatorSystemText = `You are an interview quality judge. Given a question, its goal, and the conversation so far, decide whether the expert's answers have met the question's goal. Return a valid JSON object:
{"meets_goal": <bool>, "confidence": <0.0-1.0>, "explanation": "<brief reasoning>", "missing_aspects": ["<aspect>", ...], "extracted_data": {}, "follow_up_questions": ["<question>", ...]}`

const validatorPrompt = `Section goal: %s

Question: %s
Question goal: %s

Conversation for this question:
%s

Judge whether the expert's answers meet the question goal. Be strict: partial or vague answers do not meet the goal. Return the JSON object only.`

// Validator judges, once per user turn, whether the active question's goal
// has been met. It never looks beyond the active question.
type Validator struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
}

// NewValidator creates a validator backed by the given model.
func NewValidator(ai anthropic.Client, model string, maxTokens int64) *Validator {
	return &Validator{ai: ai, model: model, maxTokens: maxTokens}
}

// Validate runs the goal judgment over the question-scoped history. A
// failed call is surfaced as an error; callers treat it as "goal not yet
// met" so the question is retried naturally on the next user turn.
func (v *Validator) Validate(ctx context.Context, section *model.Section, question *model.Question, history []model.Message) (*model.ValidationResult, error) {
	prompt := fmt.Sprintf(validatorPrompt,
		section.Goal,
		question.Text,
		question.Goal,
		renderHistory(history),
	)

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "validate")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return v.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     v.model,
			MaxTokens: v.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(validatorSystemText),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(v.model, "validate")

	var result model.ValidationResult
	if err := decodeModelJSON(resp.Text(), resp.Truncated(), &result); err != nil {
		return nil, err
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return &result, nil
}

// renderHistory formats ordered messages as role-tagged lines.
func renderHistory(history []model.Message) string {
	var b strings.Builder
	for _, m := range history {
		role := "Expert"
		if m.Role == model.RoleAssistant {
			role = "Interviewer"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return b.String()
}
