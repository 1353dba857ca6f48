package model

import "time"

// ExtractionType classifies a captured knowledge unit.
type ExtractionType string

const (
	ExtractionFact         ExtractionType = "fact"
	ExtractionProcedure    ExtractionType = "procedure"
	ExtractionDecisionRule ExtractionType = "decision_rule"
	ExtractionWarning      ExtractionType = "warning"
	ExtractionTip          ExtractionType = "tip"
	ExtractionMetric       ExtractionType = "metric"
	ExtractionDefinition   ExtractionType = "definition"
	ExtractionExample      ExtractionType = "example"
	ExtractionContext      ExtractionType = "context"
)

// Extraction is a discrete, typed knowledge unit pulled from one expert
// utterance. Extractions are append-only; duplicates across turns are
// possible since dedup is advisory (a prompt hint), not enforced.
type Extraction struct {
	ID         string         `json:"id"`
	ForgeID    string         `json:"forge_id"`
	SectionID  string         `json:"section_id,omitempty"`
	QuestionID string         `json:"question_id,omitempty"`
	Type       ExtractionType `json:"type"`
	Content    string         `json:"content"`
	Structured map[string]any `json:"structured,omitempty"`
	Confidence float64        `json:"confidence"`
	Tags       []string       `json:"tags,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ExtractedItem is one item as returned by the extractor before it is
// persisted (no IDs yet).
type ExtractedItem struct {
	Type       ExtractionType `json:"type"`
	Content    string         `json:"content"`
	Structured map[string]any `json:"structured,omitempty"`
	Confidence float64        `json:"confidence"`
	Tags       []string       `json:"tags,omitempty"`
}

// ValidationResult is the validator's per-turn judgment of whether the
// active question's goal has been met.
type ValidationResult struct {
	MeetsGoal         bool           `json:"meets_goal"`
	Confidence        float64        `json:"confidence"`
	Explanation       string         `json:"explanation"`
	MissingAspects    []string       `json:"missing_aspects,omitempty"`
	ExtractedData     map[string]any `json:"extracted_data,omitempty"`
	FollowUpQuestions []string       `json:"follow_up_questions,omitempty"`
}
