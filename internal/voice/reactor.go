package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/forge-interview/internal/interview"
	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/internal/store"
	"github.com/sells-group/forge-interview/pkg/voiceagent"
)

const voicePromptText = `You are a warm, sharp voice interviewer capturing %s's expertise in %s for %s. Ask one focused question at a time, follow the plan below, and probe when answers are thin. Speak naturally and briefly; never lecture.

{{interview_progress}}
%s`

// Opener is the slice of the interview engine the reactor needs: opening
// a fresh round and reading recomputed progress.
type Opener interface {
	Start(ctx context.Context, forgeID string) (string, error)
	Progress(ctx context.Context, forgeID string) ([]model.Section, interview.Active, error)
}

// ResumeOffer seeds a reconnect after a genuine session end.
type ResumeOffer struct {
	Opening  string `json:"opening"`
	Progress string `json:"progress"`
}

// Reactor keeps an externally hosted voice session synchronized with the
// progress model. It does not own the audio loop: it seeds sessions,
// reacts to finalized utterance events, and pushes progress updates back
// into the live session.
type Reactor struct {
	store     store.Store
	agent     voiceagent.Client
	engine    Opener
	extractor interview.KnowledgeExtractor

	agentID           string
	minTurnsForResume int
	limiter           *rate.Limiter

	// One in-flight progress push per forge; bursts of extraction-triggered
	// updates coalesce into whatever push is already pending.
	mu      sync.Mutex
	pending map[string]bool
}

// NewReactor wires a voice reactor.
func NewReactor(st store.Store, agent voiceagent.Client, engine Opener, extractor interview.KnowledgeExtractor, agentID string, minTurnsForResume int, pushInterval time.Duration) *Reactor {
	if minTurnsForResume <= 0 {
		minTurnsForResume = 4
	}
	if pushInterval <= 0 {
		pushInterval = 5 * time.Second
	}
	return &Reactor{
		store:             st,
		agent:             agent,
		engine:            engine,
		extractor:         extractor,
		agentID:           agentID,
		minTurnsForResume: minTurnsForResume,
		limiter:           rate.NewLimiter(rate.Every(pushInterval), 1),
		pending:           make(map[string]bool),
	}
}

// Bootstrap creates a voice session for the forge. A forge with enough
// transcript behind it resumes mid-plan; otherwise the round is opened
// fresh with the scripted opening.
func (r *Reactor) Bootstrap(ctx context.Context, forgeID string) (*voiceagent.Session, error) {
	forge, err := r.store.GetForge(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	turns, err := r.store.CountMessages(ctx, forgeID)
	if err != nil {
		return nil, err
	}

	var firstMessage string
	if r.ShouldResume(turns) {
		sections, _, err := r.engine.Progress(ctx, forgeID)
		if err != nil {
			return nil, err
		}
		firstMessage = interview.BuildResumeOpening(forge.ExpertName, sections)
		if _, err := r.store.AppendMessage(ctx, model.Message{
			ForgeID: forgeID,
			Role:    model.RoleAssistant,
			Content: firstMessage,
		}); err != nil {
			return nil, err
		}
	} else {
		firstMessage, err = r.engine.Start(ctx, forgeID)
		if err != nil {
			return nil, err
		}
	}

	sections, _, err := r.engine.Progress(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	progress := interview.RenderProgress(sections)

	session, err := r.agent.CreateSession(ctx, voiceagent.SessionDescriptor{
		AgentID:      r.agentID,
		Prompt:       fmt.Sprintf(voicePromptText, forge.ExpertName, forge.Domain, forge.TargetAudience, progress),
		FirstMessage: firstMessage,
		Progress:     progress,
		Metadata:     map[string]string{"forge_id": forgeID},
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("voice session bootstrapped",
		zap.String("forge_id", forgeID),
		zap.String("session_id", session.ID),
		zap.Bool("resumed", r.ShouldResume(turns)),
	)
	return session, nil
}

// HandleUtterance persists a finalized utterance and, for expert turns,
// runs extraction against whatever the state machine currently considers
// active — voice conversation wanders, and knowledge off the literal
// script is still captured.
func (r *Reactor) HandleUtterance(ctx context.Context, ev voiceagent.UtteranceEvent) error {
	_, active, err := r.engine.Progress(ctx, ev.ForgeID)
	if err != nil {
		return err
	}

	role := model.RoleAssistant
	if ev.Role == "user" {
		role = model.RoleUser
	}

	msg := model.Message{
		ForgeID: ev.ForgeID,
		Role:    role,
		Content: ev.Text,
	}
	if active.Question != nil {
		msg.QuestionID = active.Question.ID
	}
	if _, err := r.store.AppendMessage(ctx, msg); err != nil {
		return err
	}

	if role != model.RoleUser {
		return nil
	}

	existing, err := r.existingContents(ctx, ev.ForgeID)
	if err != nil {
		return err
	}
	items, err := r.extractor.Extract(ctx, active.Section, active.Question, ev.Text, existing)
	if err != nil {
		zap.L().Warn("voice extraction failed, capturing nothing this turn",
			zap.String("forge_id", ev.ForgeID),
			zap.Error(err),
		)
		return nil
	}
	if len(items) > 0 {
		extractions := make([]model.Extraction, 0, len(items))
		for _, item := range items {
			ex := model.Extraction{
				ForgeID:    ev.ForgeID,
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
		if err := r.store.AppendExtractions(ctx, extractions); err != nil {
			return err
		}
		r.QueueProgressPush(ctx, ev.ForgeID, ev.SessionID)
	}
	return nil
}

// QueueProgressPush schedules one contextual progress update into the
// live session. While a push is pending, further calls for the same
// forge coalesce into it; the rate limiter floors push frequency on top.
// Reports whether a new push was scheduled.
func (r *Reactor) QueueProgressPush(ctx context.Context, forgeID, sessionID string) bool {
	r.mu.Lock()
	if r.pending[forgeID] {
		r.mu.Unlock()
		return false
	}
	r.pending[forgeID] = true
	r.mu.Unlock()

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	go func() {
		defer cancel()
		defer func() {
			r.mu.Lock()
			delete(r.pending, forgeID)
			r.mu.Unlock()
		}()

		if err := r.limiter.Wait(pushCtx); err != nil {
			return
		}
		// Progress is rendered at push time so a coalesced burst lands its
		// latest state, not the state when the push was queued.
		sections, _, err := r.engine.Progress(pushCtx, forgeID)
		if err != nil {
			zap.L().Warn("progress push skipped", zap.String("forge_id", forgeID), zap.Error(err))
			return
		}
		if err := r.agent.SendContextualUpdate(pushCtx, sessionID, interview.RenderProgress(sections)); err != nil {
			zap.L().Warn("progress push failed", zap.String("forge_id", forgeID), zap.Error(err))
		}
	}()
	return true
}

// HandleDisconnect classifies a session drop. Drops with enough turns
// behind them are genuine ends and get a resume offer; shorter ones are
// transient noise and return nil.
func (r *Reactor) HandleDisconnect(ctx context.Context, forgeID string) (*ResumeOffer, error) {
	turns, err := r.store.CountMessages(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	if !r.ShouldResume(turns) {
		zap.L().Debug("voice disconnect below resume threshold, ignoring",
			zap.String("forge_id", forgeID),
			zap.Int("turns", turns),
		)
		return nil, nil
	}

	forge, err := r.store.GetForge(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	sections, _, err := r.engine.Progress(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	return &ResumeOffer{
		Opening:  interview.BuildResumeOpening(forge.ExpertName, sections),
		Progress: interview.RenderProgress(sections),
	}, nil
}

// ShouldResume reports whether a session with this many exchanged turns
// is worth resuming on drop.
func (r *Reactor) ShouldResume(turns int) bool {
	return turns >= r.minTurnsForResume
}

// End tears the platform session down explicitly.
func (r *Reactor) End(ctx context.Context, sessionID string) error {
	return r.agent.EndSession(ctx, sessionID)
}

func (r *Reactor) existingContents(ctx context.Context, forgeID string) ([]string, error) {
	extractions, err := r.store.ListExtractions(ctx, forgeID)
	if err != nil {
		return nil, err
	}
	contents := make([]string, 0, len(extractions))
	for _, ex := range extractions {
		contents = append(contents, ex.Content)
	}
	return contents, nil
}
