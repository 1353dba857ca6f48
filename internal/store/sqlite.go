package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/forge-interview/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS forges (
	id              TEXT PRIMARY KEY,
	expert_name     TEXT NOT NULL,
	domain          TEXT NOT NULL,
	target_audience TEXT,
	depth           TEXT,
	status          TEXT NOT NULL DEFAULT 'draft',
	metadata        TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
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
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS questions (
	id                TEXT PRIMARY KEY,
	section_id        TEXT NOT NULL REFERENCES sections(id),
	text              TEXT NOT NULL,
	goal              TEXT NOT NULL,
	order_index       INTEGER NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	validation_result TEXT,
	answered_at       DATETIME
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	forge_id    TEXT NOT NULL REFERENCES forges(id),
	question_id TEXT,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extractions (
	id          TEXT PRIMARY KEY,
	forge_id    TEXT NOT NULL REFERENCES forges(id),
	section_id  TEXT,
	question_id TEXT,
	type        TEXT NOT NULL,
	content     TEXT NOT NULL,
	structured  TEXT,
	confidence  REAL NOT NULL DEFAULT 0,
	tags        TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sections_forge_round ON sections(forge_id, round);
CREATE INDEX IF NOT EXISTS idx_questions_section ON questions(section_id);
CREATE INDEX IF NOT EXISTS idx_messages_forge ON messages(forge_id);
CREATE INDEX IF NOT EXISTS idx_messages_question ON messages(question_id);
CREATE INDEX IF NOT EXISTS idx_extractions_forge ON extractions(forge_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateForge(ctx context.Context, forge model.Forge) (*model.Forge, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO forges (id, expert_name, domain, target_audience, depth, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		forge.ID, forge.ExpertName, forge.Domain, forge.TargetAudience, forge.Depth,
		string(forge.Status), string(metaJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert forge")
	}
	return &forge, nil
}

func (s *SQLiteStore) GetForge(ctx context.Context, forgeID string) (*model.Forge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, expert_name, domain, target_audience, depth, status, metadata, created_at, updated_at
		 FROM forges WHERE id = ?`,
		forgeID,
	)

	var f model.Forge
	var metaJSON sql.NullString
	err := row.Scan(&f.ID, &f.ExpertName, &f.Domain, &f.TargetAudience, &f.Depth,
		&f.Status, &metaJSON, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("forge not found: %s", forgeID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan forge")
	}
	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &f.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
		}
	}
	return &f, nil
}

func (s *SQLiteStore) UpdateForgeStatus(ctx context.Context, forgeID string, status model.ForgeStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE forges SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), forgeID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update forge status %s", forgeID)
	}
	return checkRowsAffected(res, "forge", forgeID)
}

func (s *SQLiteStore) CreateSections(ctx context.Context, sections []model.Section) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for i := range sections {
		sec := &sections[i]
		if sec.ID == "" {
			sec.ID = uuid.New().String()
		}
		if sec.Status == "" {
			sec.Status = model.SectionStatusPending
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sections (id, forge_id, title, goal, order_index, round, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sec.ID, sec.ForgeID, sec.Title, sec.Goal, sec.OrderIndex, sec.Round, string(sec.Status),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert section %q", sec.Title)
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
			_, err := tx.ExecContext(ctx,
				`INSERT INTO questions (id, section_id, text, goal, order_index, status)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				q.ID, q.SectionID, q.Text, q.Goal, q.OrderIndex, string(q.Status),
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert question %q", q.Text)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit sections")
}

func (s *SQLiteStore) ListSections(ctx context.Context, forgeID string, round int) ([]model.Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, forge_id, title, goal, order_index, round, status, summary, completed_at
		 FROM sections WHERE forge_id = ? AND round = ? ORDER BY order_index`,
		forgeID, round,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sections")
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		var summary sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&sec.ID, &sec.ForgeID, &sec.Title, &sec.Goal, &sec.OrderIndex,
			&sec.Round, &sec.Status, &summary, &completedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan section")
		}
		sec.Summary = summary.String
		if completedAt.Valid {
			t := completedAt.Time
			sec.CompletedAt = &t
		}
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list sections iterate")
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

func (s *SQLiteStore) listQuestions(ctx context.Context, sectionID string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, section_id, text, goal, order_index, status, validation_result, answered_at
		 FROM questions WHERE section_id = ? ORDER BY order_index`,
		sectionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list questions")
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var validation sql.NullString
		var answeredAt sql.NullTime
		if err := rows.Scan(&q.ID, &q.SectionID, &q.Text, &q.Goal, &q.OrderIndex,
			&q.Status, &validation, &answeredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan question")
		}
		if validation.Valid && validation.String != "" {
			q.ValidationResult = &model.ValidationResult{}
			if err := json.Unmarshal([]byte(validation.String), q.ValidationResult); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal validation result")
			}
		}
		if answeredAt.Valid {
			t := answeredAt.Time
			q.AnsweredAt = &t
		}
		questions = append(questions, q)
	}
	return questions, eris.Wrap(rows.Err(), "sqlite: list questions iterate")
}

func (s *SQLiteStore) LatestRound(ctx context.Context, forgeID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(round), 0) FROM sections WHERE forge_id = ?`,
		forgeID,
	)
	var round int
	if err := row.Scan(&round); err != nil {
		return 0, eris.Wrap(err, "sqlite: latest round")
	}
	return round, nil
}

func (s *SQLiteStore) UpdateSectionStatus(ctx context.Context, sectionID string, status model.SectionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sections SET status = ? WHERE id = ?`,
		string(status), sectionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update section status %s", sectionID)
	}
	return checkRowsAffected(res, "section", sectionID)
}

func (s *SQLiteStore) CompleteSection(ctx context.Context, sectionID string, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sections SET status = ?, summary = ?, completed_at = ? WHERE id = ?`,
		string(model.SectionStatusCompleted), summary, time.Now().UTC(), sectionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete section %s", sectionID)
	}
	return checkRowsAffected(res, "section", sectionID)
}

func (s *SQLiteStore) UpdateQuestionStatus(ctx context.Context, questionID string, status model.QuestionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status = ? WHERE id = ?`,
		string(status), questionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update question status %s", questionID)
	}
	return checkRowsAffected(res, "question", questionID)
}

func (s *SQLiteStore) AnswerQuestion(ctx context.Context, questionID string, result *model.ValidationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal validation result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status = ?, validation_result = ?, answered_at = ? WHERE id = ?`,
		string(model.QuestionStatusAnswered), string(resultJSON), time.Now().UTC(), questionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: answer question %s", questionID)
	}
	return checkRowsAffected(res, "question", questionID)
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg model.Message) (*model.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()

	var questionID any
	if msg.QuestionID != "" {
		questionID = msg.QuestionID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, forge_id, question_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ForgeID, questionID, string(msg.Role), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert message")
	}
	return &msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, forgeID string) ([]model.Message, error) {
	return s.listMessages(ctx,
		`SELECT id, forge_id, question_id, role, content, created_at
		 FROM messages WHERE forge_id = ? ORDER BY created_at, id`,
		forgeID,
	)
}

func (s *SQLiteStore) ListQuestionMessages(ctx context.Context, questionID string) ([]model.Message, error) {
	return s.listMessages(ctx,
		`SELECT id, forge_id, question_id, role, content, created_at
		 FROM messages WHERE question_id = ? ORDER BY created_at, id`,
		questionID,
	)
}

func (s *SQLiteStore) listMessages(ctx context.Context, query string, arg any) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list messages")
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var questionID sql.NullString
		if err := rows.Scan(&m.ID, &m.ForgeID, &questionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		m.QuestionID = questionID.String
		msgs = append(msgs, m)
	}
	return msgs, eris.Wrap(rows.Err(), "sqlite: list messages iterate")
}

func (s *SQLiteStore) CountMessages(ctx context.Context, forgeID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE forge_id = ?`,
		forgeID,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count messages")
	}
	return n, nil
}

func (s *SQLiteStore) AppendExtractions(ctx context.Context, extractions []model.Extraction) error {
	if len(extractions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for i := range extractions {
		e := &extractions[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		e.CreatedAt = time.Now().UTC()

		var structuredJSON any
		if e.Structured != nil {
			b, err := json.Marshal(e.Structured)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal structured")
			}
			structuredJSON = string(b)
		}
		tags := strings.Join(e.Tags, ",")

		_, err := tx.ExecContext(ctx,
			`INSERT INTO extractions (id, forge_id, section_id, question_id, type, content, structured, confidence, tags, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.ForgeID, nullable(e.SectionID), nullable(e.QuestionID),
			string(e.Type), e.Content, structuredJSON, e.Confidence, tags, e.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert extraction")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit extractions")
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, forgeID string) ([]model.Extraction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, forge_id, section_id, question_id, type, content, structured, confidence, tags, created_at
		 FROM extractions WHERE forge_id = ? ORDER BY created_at, id`,
		forgeID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close()

	var out []model.Extraction
	for rows.Next() {
		var e model.Extraction
		var sectionID, questionID, structured, tags sql.NullString
		if err := rows.Scan(&e.ID, &e.ForgeID, &sectionID, &questionID, &e.Type,
			&e.Content, &structured, &e.Confidence, &tags, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		e.SectionID = sectionID.String
		e.QuestionID = questionID.String
		if structured.Valid && structured.String != "" {
			if err := json.Unmarshal([]byte(structured.String), &e.Structured); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal structured")
			}
		}
		if tags.Valid && tags.String != "" {
			e.Tags = strings.Split(tags.String, ",")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list extractions iterate")
}

// helpers

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
