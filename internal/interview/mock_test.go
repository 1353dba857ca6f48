package interview

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/pkg/anthropic"
)

// memStore implements store.Store in memory for engine and advancer tests.
type memStore struct {
	forges      map[string]*model.Forge
	sections    []model.Section
	messages    []model.Message
	extractions []model.Extraction

	failAppendMessage bool
	nextID            int
}

func newMemStore() *memStore {
	return &memStore{forges: make(map[string]*model.Forge)}
}

func (m *memStore) id() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

func (m *memStore) CreateForge(_ context.Context, forge model.Forge) (*model.Forge, error) {
	forge.ID = m.id()
	forge.CreatedAt = time.Now()
	m.forges[forge.ID] = &forge
	return &forge, nil
}

func (m *memStore) GetForge(_ context.Context, forgeID string) (*model.Forge, error) {
	forge, ok := m.forges[forgeID]
	if !ok {
		return nil, eris.Errorf("forge %s not found", forgeID)
	}
	return forge, nil
}

func (m *memStore) UpdateForgeStatus(_ context.Context, forgeID string, status model.ForgeStatus) error {
	forge, ok := m.forges[forgeID]
	if !ok {
		return eris.Errorf("forge %s not found", forgeID)
	}
	forge.Status = status
	return nil
}

func (m *memStore) CreateSections(_ context.Context, sections []model.Section) error {
	for _, sec := range sections {
		sec.ID = m.id()
		for i := range sec.Questions {
			sec.Questions[i].ID = m.id()
			sec.Questions[i].SectionID = sec.ID
		}
		m.sections = append(m.sections, sec)
	}
	return nil
}

func (m *memStore) ListSections(_ context.Context, forgeID string, round int) ([]model.Section, error) {
	var out []model.Section
	for _, sec := range m.sections {
		if sec.ForgeID == forgeID && sec.Round == round {
			cp := sec
			cp.Questions = append([]model.Question(nil), sec.Questions...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *memStore) LatestRound(_ context.Context, forgeID string) (int, error) {
	latest := 0
	for _, sec := range m.sections {
		if sec.ForgeID == forgeID && sec.Round > latest {
			latest = sec.Round
		}
	}
	return latest, nil
}

func (m *memStore) UpdateSectionStatus(_ context.Context, sectionID string, status model.SectionStatus) error {
	for i := range m.sections {
		if m.sections[i].ID == sectionID {
			m.sections[i].Status = status
			return nil
		}
	}
	return eris.Errorf("section %s not found", sectionID)
}

func (m *memStore) CompleteSection(_ context.Context, sectionID string, summary string) error {
	for i := range m.sections {
		if m.sections[i].ID == sectionID {
			now := time.Now()
			m.sections[i].Status = model.SectionStatusCompleted
			m.sections[i].Summary = summary
			m.sections[i].CompletedAt = &now
			return nil
		}
	}
	return eris.Errorf("section %s not found", sectionID)
}

func (m *memStore) UpdateQuestionStatus(_ context.Context, questionID string, status model.QuestionStatus) error {
	q := m.findQuestion(questionID)
	if q == nil {
		return eris.Errorf("question %s not found", questionID)
	}
	q.Status = status
	return nil
}

func (m *memStore) AnswerQuestion(_ context.Context, questionID string, result *model.ValidationResult) error {
	q := m.findQuestion(questionID)
	if q == nil {
		return eris.Errorf("question %s not found", questionID)
	}
	now := time.Now()
	q.Status = model.QuestionStatusAnswered
	q.ValidationResult = result
	q.AnsweredAt = &now
	return nil
}

func (m *memStore) findQuestion(questionID string) *model.Question {
	for i := range m.sections {
		for j := range m.sections[i].Questions {
			if m.sections[i].Questions[j].ID == questionID {
				return &m.sections[i].Questions[j]
			}
		}
	}
	return nil
}

func (m *memStore) AppendMessage(_ context.Context, msg model.Message) (*model.Message, error) {
	if m.failAppendMessage {
		return nil, eris.New("store unavailable")
	}
	msg.ID = m.id()
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memStore) ListMessages(_ context.Context, forgeID string) ([]model.Message, error) {
	var out []model.Message
	for _, msg := range m.messages {
		if msg.ForgeID == forgeID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) ListQuestionMessages(_ context.Context, questionID string) ([]model.Message, error) {
	var out []model.Message
	for _, msg := range m.messages {
		if msg.QuestionID == questionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) CountMessages(_ context.Context, forgeID string) (int, error) {
	n := 0
	for _, msg := range m.messages {
		if msg.ForgeID == forgeID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) AppendExtractions(_ context.Context, extractions []model.Extraction) error {
	for _, ex := range extractions {
		ex.ID = m.id()
		ex.CreatedAt = time.Now()
		m.extractions = append(m.extractions, ex)
	}
	return nil
}

func (m *memStore) ListExtractions(_ context.Context, forgeID string) ([]model.Extraction, error) {
	var out []model.Extraction
	for _, ex := range m.extractions {
		if ex.ForgeID == forgeID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// mockAnthropicClient implements anthropic.Client with canned responses.
type mockAnthropicClient struct {
	response *anthropic.MessageResponse
	err      error
	requests []anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAnthropicClient) StreamMessage(context.Context, anthropic.MessageRequest, int) (*anthropic.MessageStream, error) {
	return nil, eris.New("not implemented")
}

// stubStream implements ReplyStream from a fixed chunk list.
type stubStream struct {
	deltas chan string
	resp   *anthropic.MessageResponse
	err    error
}

func newStubStream(resp *anthropic.MessageResponse, err error, chunks ...string) *stubStream {
	s := &stubStream{
		deltas: make(chan string, len(chunks)),
		resp:   resp,
		err:    err,
	}
	for _, c := range chunks {
		s.deltas <- c
	}
	close(s.deltas)
	return s
}

func (s *stubStream) Deltas() <-chan string                      { return s.deltas }
func (s *stubStream) Wait() (*anthropic.MessageResponse, error)  { return s.resp, s.err }

// stubConductor streams a fixed reply.
type stubConductor struct {
	chunks    []string
	streamErr error
	waitErr   error
	opening   string
}

func (c *stubConductor) StreamReply(context.Context, *model.Forge, []model.Section, Active, []model.Message, int) (ReplyStream, error) {
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	resp := &anthropic.MessageResponse{
		Model:   "claude-sonnet-4-5-20250929",
		Content: []anthropic.ContentBlock{{Type: "text", Text: joinChunks(c.chunks)}},
	}
	return newStubStream(resp, c.waitErr, c.chunks...), nil
}

func (c *stubConductor) OpeningMessage(context.Context, *model.Forge, []model.Section) (string, error) {
	return c.opening, nil
}

func joinChunks(chunks []string) string {
	out := ""
	for _, c := range chunks {
		out += c
	}
	return out
}

// stubValidator returns a fixed result.
type stubValidator struct {
	result *model.ValidationResult
	err    error
	calls  int
}

func (v *stubValidator) Validate(context.Context, *model.Section, *model.Question, []model.Message) (*model.ValidationResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

// stubExtractor returns fixed items and records the dedup hint it saw.
type stubExtractor struct {
	items       []model.ExtractedItem
	err         error
	calls       int
	gotExisting []string
}

func (e *stubExtractor) Extract(_ context.Context, _ *model.Section, _ *model.Question, _ string, existing []string) ([]model.ExtractedItem, error) {
	e.calls++
	e.gotExisting = existing
	if e.err != nil {
		return nil, e.err
	}
	return e.items, nil
}

// stubPlanner returns fixed sections.
type stubPlanner struct {
	sections []model.Section
	err      error
	gotRound int
	gotPrior []model.Section
}

func (p *stubPlanner) PlanRound(_ context.Context, _ *model.Forge, round int, prior []model.Section) ([]model.Section, error) {
	p.gotRound = round
	p.gotPrior = prior
	if p.err != nil {
		return nil, p.err
	}
	return p.sections, nil
}
