package interview

import (
	"context"
	"fmt"

	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/internal/resilience"
	"github.com/sells-group/forge-interview/pkg/anthropic"
)

const conductorSystemText = `You are a warm, sharp interviewer capturing %s's expertise in %s for %s. Draw the expert out with one focused question or probe at a time. Ask follow-ups when answers are thin; move on when the goal below is met. Never answer for the expert and never invent facts.

{{interview_progress}}
%s`

const conductorTurnPrompt = `The current question is: %s
Its goal: %s

Continue the interview. If the expert's last answer left gaps, probe the most important gap; otherwise transition naturally to the current question.`

const openingPrompt = `Write the opening message for this interview. Greet %s, explain in one sentence that you will walk through %d topic sections about %s, then ask the first question: %s

Keep it to a few sentences. Return the message text only, no preamble.`

// Conductor produces the next interviewer utterance. It is a stateless
// function of the expert's identity, the active section/question context,
// and a bounded turn history; it never writes state itself — the caller
// persists whatever it says.
type Conductor struct {
	ai           anthropic.Client
	model        string
	maxTokens    int64
	historyLimit int
}

// NewConductor creates a conductor backed by the given model.
func NewConductor(ai anthropic.Client, model string, maxTokens int64, historyLimit int) *Conductor {
	return &Conductor{ai: ai, model: model, maxTokens: maxTokens, historyLimit: historyLimit}
}

func (c *Conductor) buildSystem(forge *model.Forge, sections []model.Section) []anthropic.SystemBlock {
	system := fmt.Sprintf(conductorSystemText,
		forge.ExpertName,
		forge.Domain,
		forge.TargetAudience,
		RenderProgress(sections),
	)
	return anthropic.BuildCachedSystemBlocks(system)
}

// StreamReply starts a streaming generation of the next interviewer
// utterance for the text modality. Deltas arrive on the stream's bounded
// channel; canceling ctx stops emission promptly.
func (c *Conductor) StreamReply(ctx context.Context, forge *model.Forge, sections []model.Section, active Active, history []model.Message, buffer int) (ReplyStream, error) {
	msgs := boundedHistory(history, c.historyLimit)
	msgs = append(msgs, anthropic.Message{
		Role: "user",
		Content: fmt.Sprintf(conductorTurnPrompt,
			active.Question.Text,
			active.Question.Goal,
		),
	})

	return c.ai.StreamMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    c.buildSystem(forge, sections),
		Messages:  msgs,
	}, buffer)
}

// OpeningMessage generates the scripted opening for a fresh session in
// one shot. Used by both the text modality and the voice bootstrap.
func (c *Conductor) OpeningMessage(ctx context.Context, forge *model.Forge, sections []model.Section) (string, error) {
	active := ComputeActive(sections)
	if active.Complete {
		return "", errRoundComplete
	}

	prompt := fmt.Sprintf(openingPrompt,
		forge.ExpertName,
		len(sections),
		forge.Domain,
		active.Question.Text,
	)

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "opening")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System:    c.buildSystem(forge, sections),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(c.model, "opening")
	return resp.Text(), nil
}

// boundedHistory converts the most recent transcript messages to backend
// messages, keeping at most limit entries.
func boundedHistory(history []model.Message, limit int) []anthropic.Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	msgs := make([]anthropic.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, anthropic.Message{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}
