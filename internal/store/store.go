package store

import (
	"context"

	"github.com/sells-group/forge-interview/internal/model"
)

// Store defines the persistence interface for the interview engine. It is
// a keyed read/append/update surface over forges, sections, questions,
// messages and extractions; the progress model is always recomputed from
// what is read back, never cached here.
type Store interface {
	// Forges
	CreateForge(ctx context.Context, forge model.Forge) (*model.Forge, error)
	GetForge(ctx context.Context, forgeID string) (*model.Forge, error)
	UpdateForgeStatus(ctx context.Context, forgeID string, status model.ForgeStatus) error

	// Sections and questions. CreateSections persists a planned round
	// (sections with their questions) in one call; statuses are the only
	// fields mutated afterwards.
	CreateSections(ctx context.Context, sections []model.Section) error
	ListSections(ctx context.Context, forgeID string, round int) ([]model.Section, error)
	LatestRound(ctx context.Context, forgeID string) (int, error)
	UpdateSectionStatus(ctx context.Context, sectionID string, status model.SectionStatus) error
	CompleteSection(ctx context.Context, sectionID string, summary string) error
	UpdateQuestionStatus(ctx context.Context, questionID string, status model.QuestionStatus) error
	AnswerQuestion(ctx context.Context, questionID string, result *model.ValidationResult) error

	// Transcript
	AppendMessage(ctx context.Context, msg model.Message) (*model.Message, error)
	ListMessages(ctx context.Context, forgeID string) ([]model.Message, error)
	ListQuestionMessages(ctx context.Context, questionID string) ([]model.Message, error)
	CountMessages(ctx context.Context, forgeID string) (int, error)

	// Extractions (append-only)
	AppendExtractions(ctx context.Context, extractions []model.Extraction) error
	ListExtractions(ctx context.Context, forgeID string) ([]model.Extraction, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
