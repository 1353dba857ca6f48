package interview

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/internal/store"
	"github.com/sells-group/forge-interview/pkg/anthropic"
)

// ReplyStream is the delta stream produced by the conductor. Deltas must
// be fully drained before Wait returns the accumulated response.
type ReplyStream interface {
	Deltas() <-chan string
	Wait() (*anthropic.MessageResponse, error)
}

// ReplyConductor produces interviewer utterances.
type ReplyConductor interface {
	StreamReply(ctx context.Context, forge *model.Forge, sections []model.Section, active Active, history []model.Message, buffer int) (ReplyStream, error)
	OpeningMessage(ctx context.Context, forge *model.Forge, sections []model.Section) (string, error)
}

// GoalValidator judges whether the active question's goal has been met.
type GoalValidator interface {
	Validate(ctx context.Context, section *model.Section, question *model.Question, history []model.Message) (*model.ValidationResult, error)
}

// KnowledgeExtractor pulls typed knowledge units from one utterance.
type KnowledgeExtractor interface {
	Extract(ctx context.Context, section *model.Section, question *model.Question, utterance string, existing []string) ([]model.ExtractedItem, error)
}

// RoundPlanner generates the sections and questions for a round.
type RoundPlanner interface {
	PlanRound(ctx context.Context, forge *model.Forge, round int, prior []model.Section) ([]model.Section, error)
}

// Engine orchestrates a full interview turn: it fans the expert's answer
// out to the conductor, validator and extractor concurrently, then folds
// their outcomes back into one ordered event stream and the store.
type Engine struct {
	store        store.Store
	conductor    ReplyConductor
	validator    GoalValidator
	extractor    KnowledgeExtractor
	planner      RoundPlanner
	advancer     *Advancer
	streamBuffer int
}

// NewEngine wires an engine from its collaborators.
func NewEngine(st store.Store, conductor ReplyConductor, validator GoalValidator, extractor KnowledgeExtractor, planner RoundPlanner, advancer *Advancer, streamBuffer int) *Engine {
	if streamBuffer <= 0 {
		streamBuffer = 64
	}
	return &Engine{
		store:        st,
		conductor:    conductor,
		validator:    validator,
		extractor:    extractor,
		planner:      planner,
		advancer:     advancer,
		streamBuffer: streamBuffer,
	}
}

// PlanRound plans the next round for the forge and persists it. Round 1
// plans from scratch; later rounds see all prior sections so they extend
// rather than repeat.
func (e *Engine) PlanRound(ctx context.Context, forgeID string) ([]model.Section, error) {
	forge, err := e.store.GetForge(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	latest, err := e.store.LatestRound(ctx, forgeID)
	if err != nil {
		return nil, err
	}

	var prior []model.Section
	for r := 1; r <= latest; r++ {
		secs, err := e.store.ListSections(ctx, forgeID, r)
		if err != nil {
			return nil, err
		}
		prior = append(prior, secs...)
	}

	sections, err := e.planner.PlanRound(ctx, forge, latest+1, prior)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, eris.New("interview: planner returned no sections")
	}
	if err := e.store.CreateSections(ctx, sections); err != nil {
		return nil, err
	}
	return e.store.ListSections(ctx, forgeID, latest+1)
}

// ImportRound persists a pre-authored plan as the forge's next round,
// bypassing generative planning.
func (e *Engine) ImportRound(ctx context.Context, forgeID string, tpl *PlanTemplate) ([]model.Section, error) {
	latest, err := e.store.LatestRound(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	round := latest + 1
	if err := e.store.CreateSections(ctx, tpl.SectionsFor(forgeID, round)); err != nil {
		return nil, err
	}
	return e.store.ListSections(ctx, forgeID, round)
}

// Start opens the latest planned round: it generates the opening message,
// marks the first section and question active, moves the forge to
// interviewing and persists the opening as the first assistant message.
func (e *Engine) Start(ctx context.Context, forgeID string) (string, error) {
	forge, sections, _, active, err := e.loadRound(ctx, forgeID)
	if err != nil {
		return "", err
	}
	if active.Complete {
		return "", errRoundComplete
	}

	opening, err := e.conductor.OpeningMessage(ctx, forge, sections)
	if err != nil {
		return "", err
	}

	if err := e.store.UpdateSectionStatus(ctx, active.Section.ID, model.SectionStatusActive); err != nil {
		return "", err
	}
	if err := e.store.UpdateQuestionStatus(ctx, active.Question.ID, model.QuestionStatusActive); err != nil {
		return "", err
	}
	if err := e.store.UpdateForgeStatus(ctx, forgeID, model.ForgeStatusInterviewing); err != nil {
		return "", err
	}
	if _, err := e.store.AppendMessage(ctx, model.Message{
		ForgeID:    forgeID,
		QuestionID: active.Question.ID,
		Role:       model.RoleAssistant,
		Content:    opening,
	}); err != nil {
		return "", err
	}
	return opening, nil
}

// Progress returns the current round's sections together with the
// recomputed active pointer.
func (e *Engine) Progress(ctx context.Context, forgeID string) ([]model.Section, Active, error) {
	_, sections, _, active, err := e.loadRound(ctx, forgeID)
	if err != nil {
		return nil, Active{}, err
	}
	return sections, active, nil
}

// EndEarly force-completes the current round regardless of validation
// state: every unfinished section is closed and the forge moves on to
// processing. Captured extractions are untouched.
func (e *Engine) EndEarly(ctx context.Context, forgeID string) error {
	_, sections, _, _, err := e.loadRound(ctx, forgeID)
	if err != nil {
		return err
	}
	for _, sec := range sections {
		if sec.Status == model.SectionStatusCompleted {
			continue
		}
		if err := e.store.CompleteSection(ctx, sec.ID, ""); err != nil {
			return err
		}
	}
	if err := e.store.UpdateForgeStatus(ctx, forgeID, model.ForgeStatusProcessing); err != nil {
		return err
	}
	zap.L().Info("interview ended early", zap.String("forge_id", forgeID))
	return nil
}

// Turn runs one text-modality turn. The returned channel carries the
// ordered event stream for the turn and is closed when the turn is over;
// an error event replaces whatever remained of the sequence. Canceling
// ctx stops emission, but any advance either lands fully or not at all.
func (e *Engine) Turn(ctx context.Context, forgeID, userText string) <-chan Event {
	out := make(chan Event, e.streamBuffer)
	go func() {
		defer close(out)
		e.runTurn(ctx, forgeID, userText, out)
	}()
	return out
}

func (e *Engine) runTurn(ctx context.Context, forgeID, userText string, out chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		zap.L().Error("turn failed",
			zap.String("forge_id", forgeID),
			zap.Error(err),
		)
		emit(Event{Type: EventError, Error: eris.ToString(err, false)})
	}

	forge, sections, round, active, err := e.loadRound(ctx, forgeID)
	if err != nil {
		fail(err)
		return
	}
	if active.Complete {
		fail(errRoundComplete)
		return
	}

	// The expert's answer is persisted before anything looks at it, so
	// validator and extractor read the same transcript the conductor sees.
	if _, err := e.store.AppendMessage(ctx, model.Message{
		ForgeID:    forgeID,
		QuestionID: active.Question.ID,
		Role:       model.RoleUser,
		Content:    userText,
	}); err != nil {
		fail(err)
		return
	}

	history, err := e.store.ListMessages(ctx, forgeID)
	if err != nil {
		fail(err)
		return
	}
	qHistory, err := e.store.ListQuestionMessages(ctx, active.Question.ID)
	if err != nil {
		fail(err)
		return
	}
	existing, err := e.existingContents(ctx, forgeID)
	if err != nil {
		fail(err)
		return
	}

	// Validator and extractor run alongside the reply stream; they depend
	// only on the already-persisted user message, never on each other or
	// on the reply. Either one failing degrades the turn (no advance / no
	// items) without killing it, so the group swallows their errors.
	var (
		g      errgroup.Group
		result *model.ValidationResult
		items  []model.ExtractedItem
	)
	g.Go(func() error {
		r, err := e.validator.Validate(ctx, active.Section, active.Question, qHistory)
		if err != nil {
			zap.L().Warn("validation failed, holding position",
				zap.String("question_id", active.Question.ID),
				zap.Error(err),
			)
			return nil
		}
		result = r
		return nil
	})
	g.Go(func() error {
		out, err := e.extractor.Extract(ctx, active.Section, active.Question, userText, existing)
		if err != nil {
			zap.L().Warn("extraction failed, capturing nothing this turn",
				zap.String("question_id", active.Question.ID),
				zap.Error(err),
			)
			return nil
		}
		items = out
		return nil
	})

	stream, err := e.conductor.StreamReply(ctx, forge, sections, active, history, e.streamBuffer)
	if err != nil {
		fail(err)
		return
	}

	var reply strings.Builder
	for delta := range stream.Deltas() {
		reply.WriteString(delta)
		if !emit(Event{Type: EventChunk, Content: delta}) {
			return
		}
	}
	resp, err := stream.Wait()
	if err != nil {
		fail(err)
		return
	}
	resp.Usage.LogCost(resp.Model, "turn")

	// From here on writes run on a context that survives a client abort:
	// the assistant message and any advance land together or not at all
	// with what the client saw.
	persistCtx := context.WithoutCancel(ctx)

	if _, err := e.store.AppendMessage(persistCtx, model.Message{
		ForgeID:    forgeID,
		QuestionID: active.Question.ID,
		Role:       model.RoleAssistant,
		Content:    reply.String(),
	}); err != nil {
		fail(err)
		return
	}

	_ = g.Wait()

	if len(items) > 0 {
		if err := e.store.AppendExtractions(persistCtx, buildExtractions(forgeID, active, items)); err != nil {
			zap.L().Warn("persisting extractions failed", zap.Error(err))
		} else if !emit(Event{Type: EventExtraction, Items: items}) {
			return
		}
	}

	if result != nil {
		if !emit(Event{Type: EventValidation, Validation: result}) {
			return
		}
	}

	if e.advancer.Decide(result) {
		info, err := e.advancer.Apply(persistCtx, forgeID, round, active, result)
		if err != nil {
			fail(err)
			return
		}
		if !emit(Event{Type: EventAdvance, Advance: info}) {
			return
		}
		if info.RoundComplete {
			if err := e.store.UpdateForgeStatus(persistCtx, forgeID, model.ForgeStatusProcessing); err != nil {
				fail(err)
				return
			}
			if !emit(Event{Type: EventComplete}) {
				return
			}
		}
	}

	emit(Event{Type: EventDone})
}

// loadRound fetches the forge, the latest round's sections and the
// recomputed active pointer in one place.
func (e *Engine) loadRound(ctx context.Context, forgeID string) (*model.Forge, []model.Section, int, Active, error) {
	forge, err := e.store.GetForge(ctx, forgeID)
	if err != nil {
		return nil, nil, 0, Active{}, err
	}
	round, err := e.store.LatestRound(ctx, forgeID)
	if err != nil {
		return nil, nil, 0, Active{}, err
	}
	if round == 0 {
		return nil, nil, 0, Active{}, eris.New("interview: no round planned")
	}
	sections, err := e.store.ListSections(ctx, forgeID, round)
	if err != nil {
		return nil, nil, 0, Active{}, err
	}
	return forge, sections, round, ComputeActive(sections), nil
}

func (e *Engine) existingContents(ctx context.Context, forgeID string) ([]string, error) {
	extractions, err := e.store.ListExtractions(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	contents := make([]string, 0, len(extractions))
	for _, ex := range extractions {
		contents = append(contents, ex.Content)
	}
	return contents, nil
}

// buildExtractions stamps extractor output with the turn's forge, section
// and question identity for persistence.
func buildExtractions(forgeID string, active Active, items []model.ExtractedItem) []model.Extraction {
	extractions := make([]model.Extraction, 0, len(items))
	for _, item := range items {
		ex := model.Extraction{
			ForgeID:    forgeID,
			Type:       item.Type,
			Content:    item.Content,
			Structured: item.Structured,
			Confidence: item.Confidence,
			Tags:       item.Tags,
		}
		if active.Section != nil {
			ex.SectionID = active.Section.ID
		}
		if active.Question != nil {
			ex.QuestionID = active.Question.ID
		}
		extractions = append(extractions, ex)
	}
	return extractions
}
