// Package engine implements the planning poker session lifecycle and voting
// round state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/broadcast"
	"github.com/wolfeidau/planpoker/internal/models"
	"github.com/wolfeidau/planpoker/internal/notify"
	"github.com/wolfeidau/planpoker/internal/store"
	"github.com/wolfeidau/planpoker/internal/telemetry"
	"github.com/wolfeidau/planpoker/internal/tracker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Broadcaster delivers session events to connected channels.
type Broadcaster interface {
	Register(sessionID, userID string) (*broadcast.Subscription, error)
	Unregister(sub *broadcast.Subscription) int
	Publish(sessionID string, events ...models.Event) broadcast.PublishResult
	CloseSession(sessionID string)
}

// Config holds the engine collaborators.
type Config struct {
	Sessions store.SessionStore
	Rounds   store.RoundStore
	Hub      Broadcaster

	// Tracker receives final estimates and vote comments for external
	// stories. Default: tracker.Noop
	Tracker tracker.Syncer
	// Notifier is told about session milestones. Default: notify.LogDispatcher
	Notifier notify.Dispatcher

	// SideEffectTimeout bounds each tracker or notification call. Default: 30s
	SideEffectTimeout time.Duration

	Clock func() time.Time
	NewID func() (string, error)
}

// Engine serializes every mutation of a session under a per-session lock,
// persists it through the stores and publishes the resulting events while
// still holding the lock, so channels see events in the order they happened.
type Engine struct {
	sessions store.SessionStore
	rounds   store.RoundStore
	hub      Broadcaster
	tracker  tracker.Syncer
	notifier notify.Dispatcher

	sideEffectTimeout time.Duration
	now               func() time.Time
	newID             func() (string, error)

	locks   *keyedMutex
	bg      sync.WaitGroup
	metrics *telemetry.Metrics
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Sessions == nil || cfg.Rounds == nil || cfg.Hub == nil {
		return nil, errors.New("engine requires session store, round store and hub")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = tracker.Noop{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewLogDispatcher(log.Logger)
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = NewID
	}

	return &Engine{
		sessions:          cfg.Sessions,
		rounds:            cfg.Rounds,
		hub:               cfg.Hub,
		tracker:           cfg.Tracker,
		notifier:          cfg.Notifier,
		sideEffectTimeout: cfg.SideEffectTimeout,
		now:               cfg.Clock,
		newID:             cfg.NewID,
		locks:             newKeyedMutex(),
		metrics:           telemetry.GetMetrics(),
	}, nil
}

// NewID returns a base58 encoded UUIDv7.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return base58.Encode(id[:]), nil
}

// Wait blocks until background side effects (tracker sync, notifications)
// have finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// lockSession serializes all mutations of one session.
func (e *Engine) lockSession(sessionID string) func() {
	return e.locks.Lock(sessionID)
}

func (e *Engine) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return session, nil
}

func (e *Engine) updateSession(ctx context.Context, sessionID string, fn func(*models.Session) error) (*models.Session, error) {
	session, err := e.sessions.UpdateSession(ctx, sessionID, fn)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return session, nil
}

func (e *Engine) updateRounds(ctx context.Context, sessionID, storyID string, fn store.RoundUpdateFunc) error {
	return mapStoreError(e.rounds.UpdateRounds(ctx, sessionID, storyID, fn))
}

// mapStoreError translates store sentinels into engine errors. Anything else
// is returned wrapped and surfaces as an internal error.
func mapStoreError(err error) error {
	var engineErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &engineErr):
		return err
	case errors.Is(err, store.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, store.ErrOpenRoundExists), errors.Is(err, store.ErrRoundNumberExists):
		return ErrRoundClosed
	default:
		return fmt.Errorf("store: %w", err)
	}
}

func (e *Engine) publish(sessionID string, events ...models.Event) {
	now := e.now()
	for i := range events {
		events[i].SessionID = sessionID
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = now
		}
	}

	res := e.hub.Publish(sessionID, events...)
	if res.Evicted > 0 {
		log.Warn().
			Str("session_id", sessionID).
			Int("evicted", res.Evicted).
			Msg("Evicted slow channels while publishing")
	}
}

// goSideEffect runs fn in the background with its own timeout. Failures are
// logged by fn and never reach the caller of the operation that triggered it.
func (e *Engine) goSideEffect(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()

		ctx, cancel := context.WithTimeout(ctx, e.sideEffectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// track records the duration and outcome of an operation:
//
//	defer e.track(ctx, "cast_vote")(&err)
func (e *Engine) track(ctx context.Context, op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		outcome := "ok"
		if errp != nil && *errp != nil {
			outcome = string(KindOf(*errp))
		}
		e.metrics.OperationDuration.Record(ctx, durationMillis(time.Since(start)),
			metric.WithAttributes(
				attribute.String("operation", op),
				attribute.String("outcome", outcome),
			))
	}
}

// durationMillis converts d to fractional milliseconds.
func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
