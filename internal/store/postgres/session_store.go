package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/models"
	"github.com/wolfeidau/planpoker/internal/store"
)

const sessionColumns = `
	session_id, title, host_id, status, voting_mode,
	participants, stories, current_story_id, created_at, ended_at
`

// SessionStore implements store.SessionStore using PostgreSQL.
// Participants and stories are stored as JSONB documents on the session row.
type SessionStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool, cfg *StoreConfig) *SessionStore {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	cfg.ApplyDefaults()
	return &SessionStore{pool: pool, cfg: cfg}
}

// CreateSession inserts a new session row.
func (s *SessionStore) CreateSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	participants, stories, err := marshalSessionDocs(session)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		session.SessionID,
		session.Title,
		session.HostID,
		string(session.Status),
		string(session.VotingMode),
		participants,
		stories,
		nullString(session.CurrentStoryID),
		session.CreatedAt,
		session.EndedAt,
	)
	if err != nil {
		return mapPostgresError(fmt.Errorf("failed to create session: %w", err))
	}

	log.Debug().
		Str("session_id", session.SessionID).
		Str("host_id", session.HostID).
		Msg("Created session")

	return nil
}

// GetSession retrieves a session by ID.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	return scanSession(row)
}

// UpdateSession locks the session row, applies fn and writes the result back
// within one transaction.
func (s *SessionStore) UpdateSession(ctx context.Context, sessionID string, fn func(*models.Session) error) (*models.Session, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1 FOR UPDATE`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	if err := fn(session); err != nil {
		return nil, err
	}

	participants, stories, err := marshalSessionDocs(session)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE sessions
		SET title = $2, host_id = $3, status = $4, voting_mode = $5,
		    participants = $6, stories = $7, current_story_id = $8, ended_at = $9
		WHERE session_id = $1
	`,
		session.SessionID,
		session.Title,
		session.HostID,
		string(session.Status),
		string(session.VotingMode),
		participants,
		stories,
		nullString(session.CurrentStoryID),
		session.EndedAt,
	)
	if err != nil {
		return nil, mapPostgresError(fmt.Errorf("failed to update session: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPostgresError(fmt.Errorf("failed to commit session update: %w", err))
	}

	return session.Clone(), nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		session        models.Session
		status, mode   string
		participants   []byte
		stories        []byte
		currentStoryID *string
		endedAt        *time.Time
	)

	err := row.Scan(
		&session.SessionID,
		&session.Title,
		&session.HostID,
		&status,
		&mode,
		&participants,
		&stories,
		&currentStoryID,
		&session.CreatedAt,
		&endedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, mapPostgresError(fmt.Errorf("failed to get session: %w", err))
	}

	session.Status = models.SessionStatus(status)
	session.VotingMode = models.VotingMode(mode)
	session.EndedAt = endedAt
	if currentStoryID != nil {
		session.CurrentStoryID = *currentStoryID
	}

	if err := json.Unmarshal(participants, &session.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	if err := json.Unmarshal(stories, &session.Stories); err != nil {
		return nil, fmt.Errorf("failed to decode stories: %w", err)
	}

	return &session, nil
}

func marshalSessionDocs(session *models.Session) (string, string, error) {
	participants := session.Participants
	if participants == nil {
		participants = []*models.Participant{}
	}
	stories := session.Stories
	if stories == nil {
		stories = []*models.Story{}
	}

	p, err := json.Marshal(participants)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode participants: %w", err)
	}
	st, err := json.Marshal(stories)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode stories: %w", err)
	}
	return string(p), string(st), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
