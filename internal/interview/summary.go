package interview

import (
	"fmt"
	"strings"

	"github.com/sells-group/forge-interview/internal/model"
)

// RenderProgress renders the progress model as text. The rendering fills
// the {{interview_progress}} slot in the conductor's system prompt and is
// pushed verbatim as a contextual update into a live voice session, so
// both modalities steer off the same view.
func RenderProgress(sections []model.Section) string {
	model.SortSections(sections)

	var b strings.Builder
	b.WriteString("INTERVIEW PLAN PROGRESS:\n")

	allAnswered := true
	active := ComputeActive(sections)

	for _, sec := range sections {
		marker := string(sec.Status)
		if active.Section != nil && sec.ID == active.Section.ID {
			marker = "active"
		}
		fmt.Fprintf(&b, "\nSection %d: %s [%s]\n", sec.OrderIndex+1, sec.Title, marker)

		for _, q := range sec.Questions {
			state := "pending"
			switch {
			case q.Status == model.QuestionStatusAnswered:
				state = "ANSWERED"
			case active.Question != nil && q.ID == active.Question.ID:
				state = "CURRENT"
			}
			if q.Status != model.QuestionStatusAnswered {
				allAnswered = false
			}
			fmt.Fprintf(&b, "  %d. %s — %s\n", q.OrderIndex+1, q.Text, state)
		}
	}

	if allAnswered && model.TotalQuestions(sections) > 0 {
		b.WriteString("\nAll questions are ANSWERED. Wrap up the interview: thank the expert and close the session.\n")
	}

	return b.String()
}
