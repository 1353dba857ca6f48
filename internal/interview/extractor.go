package interview

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/internal/resilience"
	"github.com/sells-group/forge-interview/pkg/anthropic"
)

const extractorSystemText = `You are a knowledge engineer capturing discrete, reusable knowledge units from an expert's statements. Each unit must stand on its own. Return a valid JSON array (possibly empty):
[{"type": "<fact|procedure|decision_rule|warning|tip|metric|definition|example|context>", "content": "<self-contained statement>", "structured": {}, "confidence": <0.0-1.0>, "tags": ["<tag>", ...]}]`

const extractorPrompt = `Current section: %s
Section goal: %s
Current question: %s
Question goal: %s

Expert's latest statement:
%s
%s
Extract every discrete knowledge unit from the statement above, even if it wanders off the current question. Return the JSON array only.`

// validExtractionTypes guards against the model inventing new categories.
var validExtractionTypes = map[model.ExtractionType]bool{
	model.ExtractionFact:         true,
	model.ExtractionProcedure:    true,
	model.ExtractionDecisionRule: true,
	model.ExtractionWarning:      true,
	model.ExtractionTip:          true,
	model.ExtractionMetric:       true,
	model.ExtractionDefinition:   true,
	model.ExtractionExample:      true,
	model.ExtractionContext:      true,
}

// Extractor pulls typed knowledge units from a single expert utterance.
// It sees only the latest utterance plus section/question context, never
// the full history, and runs independently of the validator.
type Extractor struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
}

// NewExtractor creates an extractor backed by the given model.
func NewExtractor(ai anthropic.Client, model string, maxTokens int64) *Extractor {
	return &Extractor{ai: ai, model: model, maxTokens: maxTokens}
}

// Extract returns zero or more knowledge items from the utterance.
// Existing extraction contents are passed as a soft dedup hint only; no
// uniqueness is enforced on what comes back.
func (e *Extractor) Extract(ctx context.Context, section *model.Section, question *model.Question, utterance string, existing []string) ([]model.ExtractedItem, error) {
	sectionTitle, sectionGoal := "(none)", "(none)"
	if section != nil {
		sectionTitle, sectionGoal = section.Title, section.Goal
	}
	questionText, questionGoal := "(free-form)", "(free-form)"
	if question != nil {
		questionText, questionGoal = question.Text, question.Goal
	}

	dedupHint := ""
	if len(existing) > 0 {
		dedupHint = "\nAlready captured (avoid repeating these):\n- " + strings.Join(existing, "\n- ") + "\n"
	}

	prompt := fmt.Sprintf(extractorPrompt,
		sectionTitle,
		sectionGoal,
		questionText,
		questionGoal,
		utterance,
		dedupHint,
	)

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "extract")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(extractorSystemText),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(e.model, "extract")

	var items []model.ExtractedItem
	if err := decodeModelJSON(resp.Text(), resp.Truncated(), &items); err != nil {
		return nil, err
	}

	out := items[:0]
	for _, item := range items {
		if item.Content == "" {
			continue
		}
		if !validExtractionTypes[item.Type] {
			item.Type = model.ExtractionContext
		}
		if item.Confidence < 0 {
			item.Confidence = 0
		}
		if item.Confidence > 1 {
			item.Confidence = 1
		}
		out = append(out, item)
	}
	return out, nil
}
