package interview

import "github.com/sells-group/forge-interview/internal/model"

// Active is the derived view of where the interview currently stands. It
// is recomputed from persisted statuses on every use rather than stored as
// a cursor, so it can never drift from ground truth.
type Active struct {
	Section  *model.Section
	Question *model.Question

	// Complete is true when every question in every section has been
	// answered (or all sections are completed), i.e. the round is over.
	Complete bool
}

// ComputeActive returns the first non-completed section and, within it,
// the first non-answered question. Sections whose questions are all
// answered are skipped even if their status has not caught up yet, so the
// result depends only on question-level ground truth. The function is pure
// and idempotent: calling it twice over the same slice yields the same
// pointer targets.
func ComputeActive(sections []model.Section) Active {
	model.SortSections(sections)

	for i := range sections {
		sec := &sections[i]
		if sec.Status == model.SectionStatusCompleted {
			continue
		}
		for j := range sec.Questions {
			q := &sec.Questions[j]
			if q.Status != model.QuestionStatusAnswered {
				return Active{Section: sec, Question: q}
			}
		}
	}
	return Active{Complete: true}
}
