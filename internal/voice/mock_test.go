package voice

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/forge-interview/internal/interview"
	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/pkg/voiceagent"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// voiceStore is the thin slice of persistence the reactor touches.
type voiceStore struct {
	mu          sync.Mutex
	forge       *model.Forge
	msgCount    int
	messages    []model.Message
	extractions []model.Extraction
}

func newVoiceStore(turns int) *voiceStore {
	return &voiceStore{
		forge: &model.Forge{
			ID:             "forge-1",
			ExpertName:     "Ada",
			Domain:         "Sourdough Baking",
			TargetAudience: "home bakers",
			Depth:          "practitioner",
			Status:         model.ForgeStatusInterviewing,
		},
		msgCount: turns,
	}
}

func (s *voiceStore) CreateForge(_ context.Context, forge model.Forge) (*model.Forge, error) {
	return &forge, nil
}

func (s *voiceStore) GetForge(_ context.Context, forgeID string) (*model.Forge, error) {
	if s.forge == nil || s.forge.ID != forgeID {
		return nil, fmt.Errorf("forge %s not found", forgeID)
	}
	f := *s.forge
	return &f, nil
}

func (s *voiceStore) UpdateForgeStatus(context.Context, string, model.ForgeStatus) error {
	return nil
}

func (s *voiceStore) CreateSections(context.Context, []model.Section) error { return nil }

func (s *voiceStore) ListSections(context.Context, string, int) ([]model.Section, error) {
	return nil, nil
}

func (s *voiceStore) LatestRound(context.Context, string) (int, error) { return 1, nil }

func (s *voiceStore) UpdateSectionStatus(context.Context, string, model.SectionStatus) error {
	return nil
}

func (s *voiceStore) CompleteSection(context.Context, string, string) error { return nil }

func (s *voiceStore) UpdateQuestionStatus(context.Context, string, model.QuestionStatus) error {
	return nil
}

func (s *voiceStore) AnswerQuestion(context.Context, string, *model.ValidationResult) error {
	return nil
}

func (s *voiceStore) AppendMessage(_ context.Context, msg model.Message) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = fmt.Sprintf("msg-%d", len(s.messages)+1)
	s.messages = append(s.messages, msg)
	s.msgCount++
	return &msg, nil
}

func (s *voiceStore) ListMessages(context.Context, string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...), nil
}

func (s *voiceStore) ListQuestionMessages(context.Context, string) ([]model.Message, error) {
	return nil, nil
}

func (s *voiceStore) CountMessages(context.Context, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgCount, nil
}

func (s *voiceStore) AppendExtractions(_ context.Context, extractions []model.Extraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractions = append(s.extractions, extractions...)
	return nil
}

func (s *voiceStore) ListExtractions(context.Context, string) ([]model.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Extraction(nil), s.extractions...), nil
}

func (s *voiceStore) Migrate(context.Context) error { return nil }
func (s *voiceStore) Close() error                  { return nil }

// stubOpener plays the engine's role: a canned opening and a fixed
// progress snapshot.
type stubOpener struct {
	opening    string
	sections   []model.Section
	active     interview.Active
	startCalls int
}

func (o *stubOpener) Start(context.Context, string) (string, error) {
	o.startCalls++
	return o.opening, nil
}

func (o *stubOpener) Progress(context.Context, string) ([]model.Section, interview.Active, error) {
	return o.sections, o.active, nil
}

// mockAgent records platform calls. updateStarted/updateRelease let the
// coalescing test hold a push in flight.
type mockAgent struct {
	mu            sync.Mutex
	created       []voiceagent.SessionDescriptor
	updates       []string
	ended         []string
	updateStarted chan struct{}
	updateRelease chan struct{}
}

func (a *mockAgent) CreateSession(_ context.Context, desc voiceagent.SessionDescriptor) (*voiceagent.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, desc)
	return &voiceagent.Session{ID: "sess-1", SignedURL: "wss://example.test/sess-1"}, nil
}

func (a *mockAgent) SendContextualUpdate(_ context.Context, sessionID, text string) error {
	if a.updateStarted != nil {
		a.updateStarted <- struct{}{}
	}
	if a.updateRelease != nil {
		<-a.updateRelease
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, text)
	return nil
}

func (a *mockAgent) EndSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ended = append(a.ended, sessionID)
	return nil
}

func (a *mockAgent) updateCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.updates)
}

// stubExtractor mirrors the engine-side test double.
type stubExtractor struct {
	mu          sync.Mutex
	items       []model.ExtractedItem
	err         error
	calls       int
	gotQuestion *model.Question
	gotExisting []string
}

func (e *stubExtractor) Extract(_ context.Context, _ *model.Section, question *model.Question, _ string, existing []string) ([]model.ExtractedItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.gotQuestion = question
	e.gotExisting = existing
	return e.items, e.err
}
