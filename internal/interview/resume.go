package interview

import (
	"fmt"
	"strings"

	"github.com/sells-group/forge-interview/internal/model"
)

// BuildResumeOpening composes the first message for a reconnected voice
// session. Instead of replaying the scripted opening it acknowledges what
// was already covered and picks up at the current question. It is built
// only from completed section titles, the current section title, and the
// current question text — sections after the current one are never named.
func BuildResumeOpening(expertName string, sections []model.Section) string {
	active := ComputeActive(sections)

	var completed []string
	for _, sec := range sections {
		if sec.Status == model.SectionStatusCompleted {
			completed = append(completed, sec.Title)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Welcome back, %s.", expertName)

	switch len(completed) {
	case 0:
	case 1:
		fmt.Fprintf(&b, " We already covered %s.", completed[0])
	default:
		fmt.Fprintf(&b, " We already covered %s and %s.",
			strings.Join(completed[:len(completed)-1], ", "),
			completed[len(completed)-1])
	}

	if active.Complete {
		b.WriteString(" We had actually finished all the planned questions — anything you'd like to add before we wrap up?")
		return b.String()
	}

	fmt.Fprintf(&b, " We were in the middle of %s. To pick up where we left off: %s",
		active.Section.Title,
		active.Question.Text,
	)
	return b.String()
}
