// Package broadcast fans session events out to connected channels.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/models"
	"github.com/wolfeidau/planpoker/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrSessionClosed is returned when registering a channel for a session that
// has ended.
var ErrSessionClosed = errors.New("session is closed")

// CloseReason explains why a subscription's event channel was closed.
type CloseReason string

const (
	CloseReasonNone         CloseReason = ""
	CloseReasonUnregistered CloseReason = "unregistered"
	CloseReasonOverflow     CloseReason = "overflow"
	CloseReasonSessionEnded CloseReason = "session-ended"
	CloseReasonShutdown     CloseReason = "shutdown"
)

// Config configures the hub.
type Config struct {
	// BufferSize is the per-channel event buffer. Default: 64
	BufferSize int
	// ClosedSessionTTL is how long ended sessions are remembered to deny new
	// channels. Default: 24h
	ClosedSessionTTL time.Duration
	// IdleSequenceTTL is how long the sequence of a session with no channels
	// is kept. Default: 24h
	IdleSequenceTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.ClosedSessionTTL <= 0 {
		c.ClosedSessionTTL = 24 * time.Hour
	}
	if c.IdleSequenceTTL <= 0 {
		c.IdleSequenceTTL = 24 * time.Hour
	}
}

// Subscription is one connected channel for a session.
type Subscription struct {
	ID        uint64
	SessionID string
	UserID    string

	events chan models.Event
	reason CloseReason
}

// Events returns the channel of events for this subscription. It is closed
// when the subscription is removed; Reason then reports why.
func (s *Subscription) Events() <-chan models.Event {
	return s.events
}

// Reason reports why the subscription was closed. Only valid once Events is
// closed.
func (s *Subscription) Reason() CloseReason {
	return s.reason
}

// PublishResult reports fan-out for one Publish call.
type PublishResult struct {
	Delivered int
	Evicted   int
}

type room struct {
	seq  int64
	subs map[uint64]*Subscription
}

// Hub maps session IDs to their connected channels. Events published for a
// session get a per-session sequence number and are queued to each channel in
// publish order. Sends never block: a channel whose buffer is full is evicted.
// Rooms exist only while they have channels; the sequence of an empty room is
// parked in an expiring cache.
type Hub struct {
	mu sync.Mutex

	cfg     Config
	rooms   map[string]*room
	nextID  uint64
	closed  *ttlcache.Cache[string, struct{}]
	idle    *ttlcache.Cache[string, int64]
	started bool
	stopped bool
	metrics *telemetry.Metrics
}

// NewHub creates a hub.
func NewHub(cfg Config) *Hub {
	cfg.applyDefaults()
	return &Hub{
		cfg:   cfg,
		rooms: make(map[string]*room),
		closed: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](cfg.ClosedSessionTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		idle: ttlcache.New[string, int64](
			ttlcache.WithTTL[string, int64](cfg.IdleSequenceTTL),
		),
		metrics: telemetry.GetMetrics(),
	}
}

// Start begins background expiry of ended-session tombstones and idle
// sequences.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started || h.stopped {
		return
	}
	h.started = true
	go h.closed.Start()
	go h.idle.Start()
}

// Stop closes every subscription and stops background work. Later
// registrations fail with ErrSessionClosed and publishes are dropped.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true

	for sessionID, r := range h.rooms {
		for _, sub := range r.subs {
			h.closeLocked(r, sub, CloseReasonShutdown)
		}
		delete(h.rooms, sessionID)
	}

	if h.started {
		h.closed.Stop()
		h.idle.Stop()
		h.started = false
	}
}

// Register adds a channel for userID to the session.
func (h *Hub) Register(sessionID, userID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || h.closed.Has(sessionID) {
		return nil, ErrSessionClosed
	}

	r, ok := h.rooms[sessionID]
	if !ok {
		r = &room{seq: h.idleSeqLocked(sessionID), subs: make(map[uint64]*Subscription)}
		h.idle.Delete(sessionID)
		h.rooms[sessionID] = r
	}

	h.nextID++
	sub := &Subscription{
		ID:        h.nextID,
		SessionID: sessionID,
		UserID:    userID,
		events:    make(chan models.Event, h.cfg.BufferSize),
	}
	r.subs[sub.ID] = sub

	h.metrics.ActiveChannels.Add(context.Background(), 1)

	log.Debug().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Uint64("subscription_id", sub.ID).
		Msg("Channel registered")

	return sub, nil
}

// Unregister removes the subscription if it is still registered and returns
// the number of channels the same user still has open in the session.
func (h *Hub) Unregister(sub *Subscription) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[sub.SessionID]
	if !ok {
		return 0
	}

	if _, ok := r.subs[sub.ID]; ok {
		h.closeLocked(r, sub, CloseReasonUnregistered)
	}
	n := h.userConnectionsLocked(r, sub.UserID)
	h.parkIfEmptyLocked(sub.SessionID, r)

	return n
}

// Publish queues events to every channel registered for the session.
func (h *Hub) Publish(sessionID string, events ...models.Event) PublishResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result PublishResult

	if h.stopped || h.closed.Has(sessionID) {
		return result
	}

	ctx := context.Background()

	r, ok := h.rooms[sessionID]
	if !ok {
		// the sequence advances even with nobody connected
		seq := h.idleSeqLocked(sessionID) + int64(len(events))
		h.idle.Set(sessionID, seq, ttlcache.DefaultTTL)
		for _, ev := range events {
			h.metrics.EventsPublishedTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("type", string(ev.Type))))
		}
		return result
	}

	for _, ev := range events {
		r.seq++
		ev.Sequence = r.seq
		ev.SessionID = sessionID
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}

		h.metrics.EventsPublishedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("type", string(ev.Type))))

		for _, sub := range r.subs {
			select {
			case sub.events <- ev:
				result.Delivered++
			default:
				// One slow channel must not hold up the others; the client
				// reconnects and pulls current state.
				log.Warn().
					Str("session_id", sessionID).
					Str("user_id", sub.UserID).
					Uint64("subscription_id", sub.ID).
					Int64("sequence", ev.Sequence).
					Msg("Channel buffer full, evicting")
				h.closeLocked(r, sub, CloseReasonOverflow)
				h.metrics.ChannelOverflowTotal.Add(ctx, 1)
				result.Evicted++
			}
		}
	}

	h.metrics.EventsDeliveredTotal.Add(ctx, int64(result.Delivered))
	h.parkIfEmptyLocked(sessionID, r)

	return result
}

// CloseSession closes every channel of the session after events already
// queued to them, and denies future registrations.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed.Set(sessionID, struct{}{}, ttlcache.DefaultTTL)
	h.idle.Delete(sessionID)

	r, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for _, sub := range r.subs {
		h.closeLocked(r, sub, CloseReasonSessionEnded)
	}
	delete(h.rooms, sessionID)

	log.Info().Str("session_id", sessionID).Msg("Session closed to channels")
}

// IsClosed reports whether the session has been closed.
func (h *Hub) IsClosed(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed.Has(sessionID)
}

// ConnectionCount returns the number of channels registered for a session.
func (h *Hub) ConnectionCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[sessionID]
	if !ok {
		return 0
	}
	return len(r.subs)
}

// UserConnections returns the number of channels userID has in the session.
func (h *Hub) UserConnections(sessionID, userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[sessionID]
	if !ok {
		return 0
	}
	return h.userConnectionsLocked(r, userID)
}

func (h *Hub) userConnectionsLocked(r *room, userID string) int {
	n := 0
	for _, sub := range r.subs {
		if sub.UserID == userID {
			n++
		}
	}
	return n
}

func (h *Hub) closeLocked(r *room, sub *Subscription, reason CloseReason) {
	delete(r.subs, sub.ID)
	sub.reason = reason
	close(sub.events)
	h.metrics.ActiveChannels.Add(context.Background(), -1)
}

func (h *Hub) idleSeqLocked(sessionID string) int64 {
	item := h.idle.Get(sessionID)
	if item == nil {
		return 0
	}
	return item.Value()
}

// parkIfEmptyLocked drops a room with no channels, keeping its sequence.
func (h *Hub) parkIfEmptyLocked(sessionID string, r *room) {
	if len(r.subs) > 0 {
		return
	}
	h.idle.Set(sessionID, r.seq, ttlcache.DefaultTTL)
	delete(h.rooms, sessionID)
}

// RoomCount returns the number of sessions with at least one channel.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms)
}
