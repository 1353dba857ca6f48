package interview

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/internal/store"
)

var errRoundComplete = eris.New("interview: round already complete")

// Advancer decides whether a validation outcome moves the active pointer
// and applies the resulting status writes. Extraction output never feeds
// into the decision.
type Advancer struct {
	store     store.Store
	threshold float64
}

// NewAdvancer creates an advancer with the configured confidence threshold.
func NewAdvancer(st store.Store, threshold float64) *Advancer {
	return &Advancer{store: st, threshold: threshold}
}

// Decide reports whether the validation result clears the bar to advance:
// the goal must be met AND confidence must reach the threshold. A
// true-but-low-confidence result does not advance; the conductor probes
// again next turn.
func (a *Advancer) Decide(result *model.ValidationResult) bool {
	return result != nil && result.MeetsGoal && result.Confidence >= a.threshold
}

// Apply marks the active question answered, recomputes the pointer from
// stored statuses, and rolls section/question statuses forward. Callers
// must invoke it at most once per turn and on a context that outlives any
// client abort, so the advance lands exactly once or not at all.
func (a *Advancer) Apply(ctx context.Context, forgeID string, round int, active Active, result *model.ValidationResult) (*AdvanceInfo, error) {
	if active.Question == nil {
		return nil, errRoundComplete
	}

	if err := a.store.AnswerQuestion(ctx, active.Question.ID, result); err != nil {
		return nil, err
	}

	sections, err := a.store.ListSections(ctx, forgeID, round)
	if err != nil {
		return nil, err
	}
	next := ComputeActive(sections)

	info := &AdvanceInfo{AnsweredQuestionID: active.Question.ID}

	switch {
	case next.Complete:
		info.SectionCompleted = true
		info.RoundComplete = true
		if err := a.store.CompleteSection(ctx, active.Section.ID, ""); err != nil {
			return nil, err
		}
	case next.Section.ID != active.Section.ID:
		info.SectionCompleted = true
		if err := a.store.CompleteSection(ctx, active.Section.ID, ""); err != nil {
			return nil, err
		}
		if err := a.store.UpdateSectionStatus(ctx, next.Section.ID, model.SectionStatusActive); err != nil {
			return nil, err
		}
		fallthrough
	default:
		info.NextSectionID = next.Section.ID
		info.NextQuestionID = next.Question.ID
		info.NextQuestionText = next.Question.Text
		if err := a.store.UpdateQuestionStatus(ctx, next.Question.ID, model.QuestionStatusActive); err != nil {
			return nil, err
		}
	}

	zap.L().Info("advanced interview pointer",
		zap.String("forge_id", forgeID),
		zap.String("answered_question_id", info.AnsweredQuestionID),
		zap.Bool("section_completed", info.SectionCompleted),
		zap.Bool("round_complete", info.RoundComplete),
	)
	return info, nil
}
