package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/forge-interview/internal/model"
)

// Pool abstracts the pgx pool operations used by PostgresStore so tests
// can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS forges (
	id              TEXT PRIMARY KEY,
	expert_name     TEXT NOT NULL,
	domain          TEXT NOT NULL,
	target_audience TEXT,
	depth           TEXT,
	status          TEXT NOT NULL DEFAULT 'draft',
	metadata        JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sections (
	id           TEXT PRIMARY KEY,
	forge_id     TEXT NOT NULL REFERENCES forges(id),
	title        TEXT NOT NULL,
	goal         TEXT NOT NULL,
	order_index  INTEGER NOT NULL,
	round        INTEGER NOT NULL DEFAULT 1,
	status       TEXT NOT NULL DEFAULT 'pending',
	summary      TEXT,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS questions (
	id                TEXT PRIMARY KEY,
	section_id        TEXT NOT NULL REFERENCES sections(id),
	text              TEXT NOT NULL,
	goal              TEXT NOT NULL,
	order_index       INTEGER NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	validation_result JSONB,
	answered_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	forge_id    TEXT NOT NULL REFERENCES forges(id),
	question_id TEXT,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extractions (
	id          TEXT PRIMARY KEY,
	forge_id    TEXT NOT NULL REFERENCES forges(id),
	section_id  TEXT,
	question_id TEXT,
	type        TEXT NOT NULL,
	content     TEXT NOT NULL,
	structured  JSONB,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	tags        TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sections_forge_round ON sections(forge_id, round);
CREATE INDEX IF NOT EXISTS idx_questions_section ON questions(section_id);
CREATE INDEX IF NOT EXISTS idx_messages_forge ON messages(forge_id);
CREATE INDEX IF NOT EXISTS idx_messages_question ON messages(question_id);
CREATE INDEX IF NOT EXISTS idx_extractions_forge ON extractions(forge_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateForge(ctx context.Context, forge model.Forge) (*model.Forge, error) {
	if forge.ID == "" {
		forge.ID = uuid.New().String()
	}
	if forge.Status == "" {
		forge.Status = model.ForgeStatusDraft
	}
	now := time.Now().UTC()
	forge.CreatedAt = now
	forge.UpdatedAt = now

	metaJSON, err := json.Marshal(forge.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO forges (id, expert_name, domain, target_audience, depth, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		forge.ID, forge.ExpertName, forge.Domain, forge.TargetAudience, forge.Depth,
		string(forge.Status), metaJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert forge")
	}
	return &forge, nil
}

func (s *PostgresStore) GetForge(ctx context.Context, forgeID string) (*model.Forge, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, expert_name, domain, target_audience, depth, status, metadata, created_at, updated_at
		 FROM forges WHERE id = $1`,
		forgeID,
	)

	var f model.Forge
	var metaJSON []byte
	err := row.Scan(&f.ID, &f.ExpertName, &f.Domain, &f.TargetAudience, &f.Depth,
		&f.Status, &metaJSON, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("forge not found: %s", forgeID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan forge")
	}
	if len(metaJSON) > 0 && string(metaJSON) != "null" {
		if err := json.Unmarshal(metaJSON, &f.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal metadata")
		}
	}
	return &f, nil
}

func (s *PostgresStore) UpdateForgeStatus(ctx context.Context, forgeID string, status model.ForgeStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE forges SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), forgeID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update forge status %s", forgeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("forge not found: %s", forgeID)
	}
	return nil
}

func (s *PostgresStore) CreateSections(ctx context.Context, sections []model.Section) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	for i := range sections {
		sec := &sections[i]
		if sec.ID == "" {
			sec.ID = uuid.New().String()
		}
		if sec.Status == "" {
			sec.Status = model.SectionStatusPending
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO sections (id, forge_id, title, goal, order_index, round, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sec.ID, sec.ForgeID, sec.Title, sec.Goal, sec.OrderIndex, sec.Round, string(sec.Status),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert section %q", sec.Title)
		}
		for j := range sec.Questions {
			q := &sec.Questions[j]
			if q.ID == "" {
				q.ID = uuid.New().String()
			}
			if q.Status == "" {
				q.Status = model.QuestionStatusPending
			}
			q.SectionID = sec.ID
			_, err := tx.Exec(ctx,
				`INSERT INTO questions (id, section_id, text, goal, order_index, status)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				q.ID, q.SectionID, q.Text, q.Goal, q.OrderIndex, string(q.Status),
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert question %q", q.Text)
			}
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit sections")
}

func (s *PostgresStore) ListSections(ctx context.Context, forgeID string, round int) ([]model.Section, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, forge_id, title, goal, order_index, round, status, summary, completed_at
		 FROM sections WHERE forge_id = $1 AND round = $2 ORDER BY order_index`,
		forgeID, round,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sections")
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		var summary *string
		var completedAt *time.Time
		if err := rows.Scan(&sec.ID, &sec.ForgeID, &sec.Title, &sec.Goal, &sec.OrderIndex,
			&sec.Round, &sec.Status, &summary, &completedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan section")
		}
		if summary != nil {
			sec.Summary = *summary
		}
		sec.CompletedAt = completedAt
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list sections iterate")
	}

	for i := range sections {
		qs, err := s.listQuestions(ctx, sections[i].ID)
		if err != nil {
			return nil, err
		}
		sections[i].Questions = qs
	}
	return sections, nil
}

func (s *PostgresStore) listQuestions(ctx context.Context, sectionID string) ([]model.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, section_id, text, goal, order_index, status, validation_result, answered_at
		 FROM questions WHERE section_id = $1 ORDER BY order_index`,
		sectionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list questions")
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var validation []byte
		var answeredAt *time.Time
		if err := rows.Scan(&q.ID, &q.SectionID, &q.Text, &q.Goal, &q.OrderIndex,
			&q.Status, &validation, &answeredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan question")
		}
		if len(validation) > 0 {
			q.ValidationResult = &model.ValidationResult{}
			if err := json.Unmarshal(validation, q.ValidationResult); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal validation result")
			}
		}
		q.AnsweredAt = answeredAt
		questions = append(questions, q)
	}
	return questions, eris.Wrap(rows.Err(), "postgres: list questions iterate")
}

func (s *PostgresStore) LatestRound(ctx context.Context, forgeID string) (int, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(round), 0) FROM sections WHERE forge_id = $1`,
		forgeID,
	)
	var round int
	if err := row.Scan(&round); err != nil {
		return 0, eris.Wrap(err, "postgres: latest round")
	}
	return round, nil
}

func (s *PostgresStore) UpdateSectionStatus(ctx context.Context, sectionID string, status model.SectionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sections SET status = $1 WHERE id = $2`,
		string(status), sectionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update section status %s", sectionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("section not found: %s", sectionID)
	}
	return nil
}

func (s *PostgresStore) CompleteSection(ctx context.Context, sectionID string, summary string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sections SET status = $1, summary = $2, completed_at = $3 WHERE id = $4`,
		string(model.SectionStatusCompleted), summary, time.Now().UTC(), sectionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete section %s", sectionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("section not found: %s", sectionID)
	}
	return nil
}

func (s *PostgresStore) UpdateQuestionStatus(ctx context.Context, questionID string, status model.QuestionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET status = $1 WHERE id = $2`,
		string(status), questionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update question status %s", questionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not found: %s", questionID)
	}
	return nil
}

func (s *PostgresStore) AnswerQuestion(ctx context.Context, questionID string, result *model.ValidationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal validation result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET status = $1, validation_result = $2, answered_at = $3 WHERE id = $4`,
		string(model.QuestionStatusAnswered), resultJSON, time.Now().UTC(), questionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: answer question %s", questionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not found: %s", questionID)
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg model.Message) (*model.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()

	var questionID any
	if msg.QuestionID != "" {
		questionID = msg.QuestionID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, forge_id, question_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ForgeID, questionID, string(msg.Role), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert message")
	}
	return &msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, forgeID string) ([]model.Message, error) {
	return s.listMessages(ctx,
		`SELECT id, forge_id, question_id, role, content, created_at
		 FROM messages WHERE forge_id = $1 ORDER BY created_at, id`,
		forgeID,
	)
}

func (s *PostgresStore) ListQuestionMessages(ctx context.Context, questionID string) ([]model.Message, error) {
	return s.listMessages(ctx,
		`SELECT id, forge_id, question_id, role, content, created_at
		 FROM messages WHERE question_id = $1 ORDER BY created_at, id`,
		questionID,
	)
}

func (s *PostgresStore) listMessages(ctx context.Context, query string, arg any) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list messages")
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var questionID *string
		if err := rows.Scan(&m.ID, &m.ForgeID, &questionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		if questionID != nil {
			m.QuestionID = *questionID
		}
		msgs = append(msgs, m)
	}
	return msgs, eris.Wrap(rows.Err(), "postgres: list messages iterate")
}

func (s *PostgresStore) CountMessages(ctx context.Context, forgeID string) (int, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE forge_id = $1`,
		forgeID,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count messages")
	}
	return n, nil
}

func (s *PostgresStore) AppendExtractions(ctx context.Context, extractions []model.Extraction) error {
	if len(extractions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	for i := range extractions {
		e := &extractions[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		e.CreatedAt = time.Now().UTC()

		var structuredJSON []byte
		if e.Structured != nil {
			structuredJSON, err = json.Marshal(e.Structured)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal structured")
			}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO extractions (id, forge_id, section_id, question_id, type, content, structured, confidence, tags, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.ForgeID, nullable(e.SectionID), nullable(e.QuestionID),
			string(e.Type), e.Content, structuredJSON, e.Confidence,
			strings.Join(e.Tags, ","), e.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert extraction")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit extractions")
}

func (s *PostgresStore) ListExtractions(ctx context.Context, forgeID string) ([]model.Extraction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, forge_id, section_id, question_id, type, content, structured, confidence, tags, created_at
		 FROM extractions WHERE forge_id = $1 ORDER BY created_at, id`,
		forgeID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	defer rows.Close()

	var out []model.Extraction
	for rows.Next() {
		var e model.Extraction
		var sectionID, questionID, tags *string
		var structured []byte
		if err := rows.Scan(&e.ID, &e.ForgeID, &sectionID, &questionID, &e.Type,
			&e.Content, &structured, &e.Confidence, &tags, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction")
		}
		if sectionID != nil {
			e.SectionID = *sectionID
		}
		if questionID != nil {
			e.QuestionID = *questionID
		}
		if len(structured) > 0 {
			if err := json.Unmarshal(structured, &e.Structured); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal structured")
			}
		}
		if tags != nil && *tags != "" {
			e.Tags = strings.Split(*tags, ",")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list extractions iterate")
}
