package interview

import "github.com/sells-group/forge-interview/internal/model"

// EventType names the per-turn stream events. For any single turn the
// order is: chunk* → extraction? → validation? → advance? →
// interview_complete? → done, with error allowed to replace the remainder
// of the sequence at any point.
type EventType string

const (
	EventChunk      EventType = "chunk"
	EventExtraction EventType = "extraction"
	EventValidation EventType = "validation"
	EventAdvance    EventType = "advance"
	EventComplete   EventType = "interview_complete"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Event is one element of a turn's ordered event stream.
type Event struct {
	Type       EventType               `json:"type"`
	Content    string                  `json:"content,omitempty"`
	Items      []model.ExtractedItem   `json:"items,omitempty"`
	Validation *model.ValidationResult `json:"validation,omitempty"`
	Advance    *AdvanceInfo            `json:"advance,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// AdvanceInfo describes a pointer move applied by the advancer.
type AdvanceInfo struct {
	AnsweredQuestionID string `json:"answered_question_id"`
	SectionCompleted   bool   `json:"section_completed"`
	RoundComplete      bool   `json:"round_complete"`
	NextSectionID      string `json:"next_section_id,omitempty"`
	NextQuestionID     string `json:"next_question_id,omitempty"`
	NextQuestionText   string `json:"next_question_text,omitempty"`
}
