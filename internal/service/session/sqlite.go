package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/quietriver/reframe/backend/internal/model/reflection"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store over a SQLite file. WAL mode keeps
// concurrent reflect calls from starving each other on writes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		current_layer TEXT NOT NULL,
		core_belief TEXT NOT NULL DEFAULT '',
		core_belief_detected INTEGER NOT NULL DEFAULT 0,
		grounding_mode INTEGER NOT NULL DEFAULT 0,
		grounding_turns INTEGER NOT NULL DEFAULT 0,
		last_question_type TEXT NOT NULL DEFAULT '',
		last_intent_used TEXT NOT NULL DEFAULT 'AUTO',
		is_completed INTEGER NOT NULL DEFAULT 0,
		insights_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		thought_pattern TEXT NOT NULL DEFAULT '',
		pattern_note TEXT NOT NULL DEFAULT '',
		reframe TEXT NOT NULL DEFAULT '',
		question TEXT NOT NULL DEFAULT '',
		encouragement TEXT NOT NULL DEFAULT '',
		iceberg_layer TEXT NOT NULL DEFAULT '',
		layer_insight TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, userID string) (reflection.Session, error) {
	if userID == "" {
		return reflection.Session{}, ErrUserRequired
	}

	session := reflection.NewSession(uuid.NewString(), userID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, current_layer, last_intent_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, string(session.CurrentLayer), string(session.LastIntentUsed),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return reflection.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

const sessionColumns = `id, user_id, current_layer, core_belief, core_belief_detected,
	grounding_mode, grounding_turns, last_question_type, last_intent_used,
	is_completed, insights_json, created_at, updated_at`

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (reflection.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]reflection.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []reflection.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session reflection.Session) error {
	insights, err := marshalInsights(session.DiscoveredInsights)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET current_layer = ?, core_belief = ?, core_belief_detected = ?,
			grounding_mode = ?, grounding_turns = ?, last_question_type = ?,
			last_intent_used = ?, is_completed = ?, insights_json = ?, updated_at = ?
		WHERE id = ?`,
		string(session.CurrentLayer), session.CoreBelief, boolInt(session.CoreBeliefDetected),
		boolInt(session.GroundingMode), session.GroundingTurns, string(session.LastQuestionType),
		string(session.LastIntentUsed), boolInt(session.IsCompleted), insights,
		time.Now().UTC().Unix(), session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ResetSession(ctx context.Context, sessionID string) (reflection.Session, error) {
	stored, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return reflection.Session{}, err
	}

	fresh := reflection.NewSession(stored.ID, stored.UserID)
	fresh.CreatedAt = stored.CreatedAt

	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET current_layer = ?, core_belief = '', core_belief_detected = 0,
			grounding_mode = 0, grounding_turns = 0, last_question_type = '',
			last_intent_used = ?, is_completed = 0, insights_json = NULL, updated_at = ?
		WHERE id = ?`,
		string(fresh.CurrentLayer), string(fresh.LastIntentUsed), time.Now().UTC().Unix(), sessionID,
	)
	if err != nil {
		return reflection.Session{}, fmt.Errorf("reset session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return reflection.Session{}, fmt.Errorf("clear transcript: %w", err)
	}
	return fresh, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, message reflection.Message) (reflection.Message, error) {
	if _, err := s.GetSession(ctx, message.SessionID); err != nil {
		return reflection.Message{}, err
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, thought_pattern, pattern_note,
			reframe, question, encouragement, iceberg_layer, layer_insight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, message.Role, message.Content,
		message.ThoughtPattern, message.PatternNote, message.Reframe, message.Question,
		message.Encouragement, string(message.IcebergLayer), message.LayerInsight,
		message.CreatedAt.Unix(),
	)
	if err != nil {
		return reflection.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string) ([]reflection.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, thought_pattern, pattern_note,
			reframe, question, encouragement, iceberg_layer, layer_insight, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]reflection.Message, 0, 32)
	for rows.Next() {
		var msg reflection.Message
		var layer string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.ThoughtPattern, &msg.PatternNote, &msg.Reframe, &msg.Question,
			&msg.Encouragement, &layer, &msg.LayerInsight, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.IcebergLayer = reflection.Layer(layer)
		msg.CreatedAt = time.Unix(createdAt, 0).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (reflection.Session, error) {
	var session reflection.Session
	var layer, questionType, intent string
	var detected, grounding, completed int
	var insights sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&session.ID, &session.UserID, &layer, &session.CoreBelief, &detected,
		&grounding, &session.GroundingTurns, &questionType, &intent,
		&completed, &insights, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return reflection.Session{}, ErrNotFound
	}
	if err != nil {
		return reflection.Session{}, fmt.Errorf("scan session row: %w", err)
	}

	session.CurrentLayer = reflection.Layer(layer)
	session.CoreBeliefDetected = detected != 0
	session.GroundingMode = grounding != 0
	session.LastQuestionType = reflection.QuestionType(questionType)
	session.LastIntentUsed = reflection.Intent(intent)
	session.IsCompleted = completed != 0
	session.CreatedAt = time.Unix(createdAt, 0).UTC()
	session.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if insights.Valid && insights.String != "" {
		if err := json.Unmarshal([]byte(insights.String), &session.DiscoveredInsights); err != nil {
			return reflection.Session{}, fmt.Errorf("unmarshal insights: %w", err)
		}
	}
	return session, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalInsights(insights map[reflection.Layer]string) (sql.NullString, error) {
	if len(insights) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(insights)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal insights: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
