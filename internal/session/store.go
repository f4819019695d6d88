package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medigenius/medigenius/internal/risk"
)

// DB is the subset of pgx pool operations the store needs, including
// transaction support for atomic turn appends.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages session persistence with a PostgreSQL backend.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store backed by the given pool.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateSession creates a new conversation session.
func (s *Store) CreateSession(ctx context.Context, title string) (*Session, error) {
	session := &Session{ID: uuid.New(), Title: title}

	const insert = `
		INSERT INTO sessions (id, title)
		VALUES ($1, $2)
		RETURNING created_at, updated_at`
	err := s.db.QueryRow(ctx, insert, session.ID, title).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("created session", "id", session.ID, "title", title)
	return session, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	session := &Session{ID: sessionID}

	const query = `SELECT title, created_at, updated_at FROM sessions WHERE id = $1`
	err := s.db.QueryRow(ctx, query, sessionID).Scan(&session.Title, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return session, nil
}

// ListSessions lists sessions ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	const query = `
		SELECT id, title, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and, via cascade, its messages.
func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Messages returns all messages of a session in sequence order.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	const query = `
		SELECT id, sequence_number, role, content, source, risk, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY sequence_number`
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg := Message{SessionID: sessionID}
		var riskJSON []byte
		if err := rows.Scan(&msg.ID, &msg.SequenceNumber, &msg.Role, &msg.Content, &msg.Source, &riskJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(riskJSON) > 0 {
			var a risk.Assessment
			if err := json.Unmarshal(riskJSON, &a); err != nil {
				s.logger.Warn("failed to parse stored risk assessment", "message_id", msg.ID, "error", err)
			} else {
				msg.Risk = &a
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendTurn writes one completed exchange in a single transaction. The
// session row is locked first so concurrent appends to the same session
// serialize and sequence numbers never collide. On any failure the
// transaction rolls back and nothing is persisted.
func (s *Store) AppendTurn(ctx context.Context, sessionID uuid.UUID, turn Turn) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}

	var maxSeq int
	const maxSeqQuery = `SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE session_id = $1`
	if err := tx.QueryRow(ctx, maxSeqQuery, sessionID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("failed to get max sequence number: %w", err)
	}

	var riskJSON []byte
	if turn.Risk != nil {
		riskJSON, err = json.Marshal(turn.Risk)
		if err != nil {
			return fmt.Errorf("failed to marshal risk assessment: %w", err)
		}
	}

	const insert = `
		INSERT INTO messages (id, session_id, sequence_number, role, content, source, risk, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	now := time.Now()
	if _, err := tx.Exec(ctx, insert, uuid.New(), sessionID, maxSeq+1, RoleUser, turn.UserText, "", nil, now); err != nil {
		return fmt.Errorf("failed to insert user message: %w", err)
	}
	if _, err := tx.Exec(ctx, insert, uuid.New(), sessionID, maxSeq+2, RoleAssistant, turn.AnswerText, turn.Source, riskJSON, now); err != nil {
		return fmt.Errorf("failed to insert assistant message: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}

	s.logger.Debug("appended turn", "session_id", sessionID, "source", turn.Source, "has_risk", turn.Risk != nil)
	return nil
}
