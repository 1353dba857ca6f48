package model

import (
	"sort"
	"time"
)

// SectionStatus tracks a section through a round.
type SectionStatus string

const (
	SectionStatusPending   SectionStatus = "pending"
	SectionStatusActive    SectionStatus = "active"
	SectionStatusCompleted SectionStatus = "completed"
)

// QuestionStatus tracks a question within its section.
type QuestionStatus string

const (
	QuestionStatusPending  QuestionStatus = "pending"
	QuestionStatusActive   QuestionStatus = "active"
	QuestionStatusAnswered QuestionStatus = "answered"
)

// Section is one topic block of an interview round. Sections are created
// when a round is planned and never mutated afterwards except for status,
// summary and completion timestamps. A later round appends new sections
// rather than reusing old ones.
type Section struct {
	ID          string        `json:"id"`
	ForgeID     string        `json:"forge_id"`
	Title       string        `json:"title"`
	Goal        string        `json:"goal"`
	OrderIndex  int           `json:"order_index"`
	Round       int           `json:"round"`
	Status      SectionStatus `json:"status"`
	Summary     string        `json:"summary,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Questions   []Question    `json:"questions,omitempty"`
}

// Question is a single scripted prompt inside a section.
type Question struct {
	ID               string            `json:"id"`
	SectionID        string            `json:"section_id"`
	Text             string            `json:"text"`
	Goal             string            `json:"goal"`
	OrderIndex       int               `json:"order_index"`
	Status           QuestionStatus    `json:"status"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	AnsweredAt       *time.Time        `json:"answered_at,omitempty"`
}

// SortSections orders sections and their questions by order index.
func SortSections(sections []Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].OrderIndex < sections[j].OrderIndex
	})
	for i := range sections {
		qs := sections[i].Questions
		sort.SliceStable(qs, func(a, b int) bool {
			return qs[a].OrderIndex < qs[b].OrderIndex
		})
	}
}

// TotalQuestions counts questions across all sections.
func TotalQuestions(sections []Section) int {
	n := 0
	for _, s := range sections {
		n += len(s.Questions)
	}
	return n
}
