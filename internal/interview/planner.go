package interview

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/internal/resilience"
	"github.com/sells-group/forge-interview/pkg/anthropic"
)

const plannerSystemText = `You are an interview architect. Design a structured knowledge-capture interview plan. Return a valid JSON object:
{"sections": [{"title": "<short title>", "goal": "<what this section must surface>", "questions": [{"text": "<question as asked>", "goal": "<what a complete answer covers>"}]}]}`

const plannerPrompt = `Design round %d of a knowledge-capture interview.

Expert: %s
Domain: %s
Target audience: %s
Depth: %s
%s
Create 3-6 sections of 2-5 questions each, ordered from foundations to edge cases. Questions must be open-ended and specific to the domain. Return the JSON object only.`

const plannerFollowUpContext = `
This is a follow-up round. Earlier rounds already covered:
%s
Focus new sections on gaps, contradictions, and depth the earlier rounds missed. Do not repeat covered ground.
`

// Planner generates the section/question plan for a round. Each round is
// a fresh append: new sections are created rather than old ones reused.
type Planner struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
}

// NewPlanner creates a planner backed by the given model. Planning is the
// one call that benefits from extended reasoning effort, which only the
// opus tier honors.
func NewPlanner(ai anthropic.Client, model string, maxTokens int64) *Planner {
	return &Planner{ai: ai, model: model, maxTokens: maxTokens}
}

// PlanRound generates the sections and questions for the given round.
// Prior sections (from earlier rounds) are summarized into the prompt so
// follow-up rounds extend rather than repeat.
func (p *Planner) PlanRound(ctx context.Context, forge *model.Forge, round int, prior []model.Section) ([]model.Section, error) {
	followUp := ""
	if round > 1 && len(prior) > 0 {
		var titles []string
		for _, s := range prior {
			titles = append(titles, fmt.Sprintf("- %s: %s", s.Title, s.Goal))
		}
		followUp = fmt.Sprintf(plannerFollowUpContext, strings.Join(titles, "\n"))
	}

	prompt := fmt.Sprintf(plannerPrompt,
		round,
		forge.ExpertName,
		forge.Domain,
		forge.TargetAudience,
		forge.Depth,
		followUp,
	)

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "plan")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return p.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     p.model,
			MaxTokens: p.maxTokens,
			System:    []anthropic.SystemBlock{{Text: plannerSystemText}},
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
			Effort:    anthropic.EffortHigh,
		})
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(p.model, "plan")

	var plan struct {
		Sections []struct {
			Title     string `json:"title"`
			Goal      string `json:"goal"`
			Questions []struct {
				Text string `json:"text"`
				Goal string `json:"goal"`
			} `json:"questions"`
		} `json:"sections"`
	}
	if err := decodeModelJSON(resp.Text(), resp.Truncated(), &plan); err != nil {
		return nil, err
	}

	var sections []model.Section
	for i, ps := range plan.Sections {
		if ps.Title == "" || len(ps.Questions) == 0 {
			continue
		}
		sec := model.Section{
			ForgeID:    forge.ID,
			Title:      ps.Title,
			Goal:       ps.Goal,
			OrderIndex: i,
			Round:      round,
			Status:     model.SectionStatusPending,
		}
		for j, pq := range ps.Questions {
			if pq.Text == "" {
				continue
			}
			sec.Questions = append(sec.Questions, model.Question{
				Text:       pq.Text,
				Goal:       pq.Goal,
				OrderIndex: j,
				Status:     model.QuestionStatusPending,
			})
		}
		sections = append(sections, sec)
	}
	return sections, nil
}
