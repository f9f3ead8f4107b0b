package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/models"
	"github.com/wolfeidau/planpoker/internal/store"
)

const estimateColumns = `
	session_id, story_id, round_number, votes, created_at,
	revealed_at, finalized_at, final_estimate, tracker_sync
`

// RoundStore implements store.RoundStore using PostgreSQL. Votes are stored
// as a JSONB map keyed by user ID on the estimate row.
type RoundStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
}

// NewRoundStore creates a new PostgreSQL-backed round store.
func NewRoundStore(pool *pgxpool.Pool, cfg *StoreConfig) *RoundStore {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	cfg.ApplyDefaults()
	return &RoundStore{pool: pool, cfg: cfg}
}

// ListRounds returns a story's rounds ordered by round number.
func (s *RoundStore) ListRounds(ctx context.Context, sessionID, storyID string) ([]*models.Estimate, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+estimateColumns+`
		FROM estimates
		WHERE session_id = $1 AND story_id = $2
		ORDER BY round_number
	`, sessionID, storyID)
	if err != nil {
		return nil, mapPostgresError(fmt.Errorf("failed to list rounds: %w", err))
	}
	return collectEstimates(rows)
}

// ListSessionRounds returns every round in a session.
func (s *RoundStore) ListSessionRounds(ctx context.Context, sessionID string) ([]*models.Estimate, error) {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+estimateColumns+`
		FROM estimates
		WHERE session_id = $1
		ORDER BY story_id, round_number
	`, sessionID)
	if err != nil {
		return nil, mapPostgresError(fmt.Errorf("failed to list session rounds: %w", err))
	}
	return collectEstimates(rows)
}

// UpdateRounds serializes writers for a (session, story) pair with a
// transaction-scoped advisory lock, then upserts the rounds returned by fn.
func (s *RoundStore) UpdateRounds(ctx context.Context, sessionID, storyID string, fn store.RoundUpdateFunc) error {
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if _, err = tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1 || '/' || $2, 0))`,
		sessionID, storyID,
	); err != nil {
		return mapPostgresError(fmt.Errorf("failed to lock rounds: %w", err))
	}

	rows, err := tx.Query(ctx, `
		SELECT `+estimateColumns+`
		FROM estimates
		WHERE session_id = $1 AND story_id = $2
		ORDER BY round_number
	`, sessionID, storyID)
	if err != nil {
		return mapPostgresError(fmt.Errorf("failed to load rounds: %w", err))
	}
	current, err := collectEstimates(rows)
	if err != nil {
		return err
	}

	changed, err := fn(current)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	for _, r := range changed {
		if r.SessionID != sessionID || r.StoryID != storyID {
			return store.ErrInvalidRound
		}
	}
	if err := store.ValidateRounds(store.MergeRounds(current, changed)); err != nil {
		return err
	}

	// Revealed rounds are written before open ones so the partial unique
	// index never sees two open rounds mid-transaction.
	ordered := make([]*models.Estimate, 0, len(changed))
	for _, r := range changed {
		if r.IsRevealed() {
			ordered = append(ordered, r)
		}
	}
	for _, r := range changed {
		if r.IsOpen() {
			ordered = append(ordered, r)
		}
	}

	for _, r := range ordered {
		if err := upsertEstimate(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError(fmt.Errorf("failed to commit rounds: %w", err))
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("story_id", storyID).
		Int("rounds", len(changed)).
		Msg("Updated rounds")

	return nil
}

func upsertEstimate(ctx context.Context, tx pgx.Tx, r *models.Estimate) error {
	votes := r.Votes
	if votes == nil {
		votes = map[string]*models.Vote{}
	}
	data, err := json.Marshal(votes)
	if err != nil {
		return fmt.Errorf("failed to encode votes: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO estimates (`+estimateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, story_id, round_number) DO UPDATE
		SET votes = EXCLUDED.votes,
		    revealed_at = EXCLUDED.revealed_at,
		    finalized_at = EXCLUDED.finalized_at,
		    final_estimate = EXCLUDED.final_estimate,
		    tracker_sync = EXCLUDED.tracker_sync
	`,
		r.SessionID,
		r.StoryID,
		r.RoundNumber,
		string(data),
		r.CreatedAt,
		r.RevealedAt,
		r.FinalizedAt,
		r.FinalEstimate,
		string(r.TrackerSync),
	)
	if err != nil {
		return mapPostgresError(fmt.Errorf("failed to upsert round %d: %w", r.RoundNumber, err))
	}
	return nil
}

func collectEstimates(rows pgx.Rows) ([]*models.Estimate, error) {
	defer rows.Close()

	var out []*models.Estimate
	for rows.Next() {
		var (
			e     models.Estimate
			votes []byte
			sync  string
		)
		if err := rows.Scan(
			&e.SessionID,
			&e.StoryID,
			&e.RoundNumber,
			&votes,
			&e.CreatedAt,
			&e.RevealedAt,
			&e.FinalizedAt,
			&e.FinalEstimate,
			&sync,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		e.TrackerSync = models.TrackerSyncStatus(sync)
		e.Votes = make(map[string]*models.Vote)
		if err := json.Unmarshal(votes, &e.Votes); err != nil {
			return nil, fmt.Errorf("failed to decode votes: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(fmt.Errorf("failed to iterate rounds: %w", err))
	}
	return out, nil
}
