package interview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/forge-interview/internal/model"
)

func TestRenderProgress_Markers(t *testing.T) {
	sections := planSections()
	sections[0].Questions[0].Status = model.QuestionStatusAnswered

	out := RenderProgress(sections)

	assert.Contains(t, out, "INTERVIEW PLAN PROGRESS:")
	assert.Contains(t, out, "Section 1: Foundations [active]")
	assert.Contains(t, out, "1. How did you start? — ANSWERED")
	assert.Contains(t, out, "2. What changed since? — CURRENT")
	assert.Contains(t, out, "Section 2: Edge Cases [pending]")
	assert.Contains(t, out, "1. What goes wrong? — pending")
	assert.NotContains(t, out, "Wrap up")
}

func TestRenderProgress_ExactlyOneCurrent(t *testing.T) {
	out := RenderProgress(planSections())

	assert.Equal(t, 1, strings.Count(out, "CURRENT"))
}

func TestRenderProgress_WrapUpDirectiveWhenDone(t *testing.T) {
	sections := planSections()
	for i := range sections {
		for j := range sections[i].Questions {
			sections[i].Questions[j].Status = model.QuestionStatusAnswered
		}
	}

	out := RenderProgress(sections)

	assert.Contains(t, out, "Wrap up the interview")
	assert.NotContains(t, out, "CURRENT")
}

func TestRenderProgress_EmptyPlanHasNoDirective(t *testing.T) {
	out := RenderProgress(nil)

	assert.Contains(t, out, "INTERVIEW PLAN PROGRESS:")
	assert.NotContains(t, out, "Wrap up")
}
