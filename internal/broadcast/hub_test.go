package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/planpoker/internal/models"
)

func drain(sub *Subscription) []models.Event {
	var out []models.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_PublishOrdering(t *testing.T) {
	hub := NewHub(Config{BufferSize: 16})
	defer hub.Stop()

	a, err := hub.Register("s1", "alice")
	require.NoError(t, err)
	b, err := hub.Register("s1", "bob")
	require.NoError(t, err)
	other, err := hub.Register("s2", "carol")
	require.NoError(t, err)

	res := hub.Publish("s1",
		models.Event{Type: models.EventStoryAdded},
		models.Event{Type: models.EventStorySelected},
	)
	require.Equal(t, 4, res.Delivered)
	require.Equal(t, 0, res.Evicted)

	hub.Publish("s1", models.Event{Type: models.EventVoteCast})

	for _, sub := range []*Subscription{a, b} {
		events := drain(sub)
		require.Len(t, events, 3)
		require.Equal(t, models.EventStoryAdded, events[0].Type)
		require.Equal(t, models.EventStorySelected, events[1].Type)
		require.Equal(t, models.EventVoteCast, events[2].Type)
		for i, ev := range events {
			require.Equal(t, int64(i+1), ev.Sequence)
			require.Equal(t, "s1", ev.SessionID)
			require.False(t, ev.Timestamp.IsZero())
		}
	}

	require.Empty(t, drain(other))
}

func TestHub_SequenceSurvivesDisconnect(t *testing.T) {
	hub := NewHub(Config{BufferSize: 4})
	defer hub.Stop()

	sub, err := hub.Register("s1", "alice")
	require.NoError(t, err)
	hub.Publish("s1", models.Event{Type: models.EventVoteCast})
	require.Equal(t, 0, hub.Unregister(sub))

	hub.Publish("s1", models.Event{Type: models.EventVoteCast})

	sub2, err := hub.Register("s1", "alice")
	require.NoError(t, err)
	hub.Publish("s1", models.Event{Type: models.EventVoteCast})

	events := drain(sub2)
	require.Len(t, events, 1)
	require.Equal(t, int64(3), events[0].Sequence)
}

func TestHub_OverflowEvictsOnlySlowChannel(t *testing.T) {
	hub := NewHub(Config{BufferSize: 2})
	defer hub.Stop()

	slow, err := hub.Register("s1", "slow")
	require.NoError(t, err)
	fast, err := hub.Register("s1", "fast")
	require.NoError(t, err)

	var fastEvents []models.Event
	for i := 0; i < 5; i++ {
		res := hub.Publish("s1", models.Event{Type: models.EventVoteCast})
		if i == 2 {
			require.Equal(t, 1, res.Evicted)
		}
		fastEvents = append(fastEvents, drain(fast)...)
	}

	require.Len(t, fastEvents, 5)
	require.Equal(t, 1, hub.ConnectionCount("s1"))

	slowEvents := drain(slow)
	require.Len(t, slowEvents, 2)
	_, ok := <-slow.Events()
	require.False(t, ok)
	require.Equal(t, CloseReasonOverflow, slow.Reason())

	// unregistering an evicted channel is harmless
	require.Equal(t, 0, hub.Unregister(slow))
	require.Equal(t, 1, hub.UserConnections("s1", "fast"))
}

func TestHub_CloseSession(t *testing.T) {
	hub := NewHub(Config{BufferSize: 4, ClosedSessionTTL: time.Minute})
	hub.Start()
	defer hub.Stop()

	sub, err := hub.Register("s1", "alice")
	require.NoError(t, err)

	hub.Publish("s1", models.Event{Type: models.EventSessionEnded})
	hub.CloseSession("s1")

	t.Run("queued events are delivered before close", func(t *testing.T) {
		ev, ok := <-sub.Events()
		require.True(t, ok)
		require.Equal(t, models.EventSessionEnded, ev.Type)

		_, ok = <-sub.Events()
		require.False(t, ok)
		require.Equal(t, CloseReasonSessionEnded, sub.Reason())
	})

	t.Run("new channels are denied", func(t *testing.T) {
		_, err := hub.Register("s1", "bob")
		require.ErrorIs(t, err, ErrSessionClosed)
		require.True(t, hub.IsClosed("s1"))
	})

	t.Run("publish after close is dropped", func(t *testing.T) {
		res := hub.Publish("s1", models.Event{Type: models.EventVoteCast})
		require.Equal(t, PublishResult{}, res)
	})

	t.Run("other sessions unaffected", func(t *testing.T) {
		_, err := hub.Register("s2", "bob")
		require.NoError(t, err)
	})
}

func TestHub_UserConnections(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Stop()

	tab1, err := hub.Register("s1", "alice")
	require.NoError(t, err)
	tab2, err := hub.Register("s1", "alice")
	require.NoError(t, err)

	require.Equal(t, 2, hub.UserConnections("s1", "alice"))
	require.Equal(t, 1, hub.Unregister(tab1))
	require.Equal(t, 0, hub.Unregister(tab2))
	require.Equal(t, CloseReasonUnregistered, tab2.Reason())
}

func TestHub_ConcurrentPublish(t *testing.T) {
	hub := NewHub(Config{BufferSize: 1024})
	defer hub.Stop()

	sub, err := hub.Register("s1", "alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.Publish("s1", models.Event{Type: models.EventVoteCast})
			}
		}()
	}
	wg.Wait()

	events := drain(sub)
	require.Len(t, events, 200)
	for i, ev := range events {
		require.Equal(t, int64(i+1), ev.Sequence)
	}
}

func TestHub_EmptyRoomsAreDropped(t *testing.T) {
	hub := NewHub(Config{BufferSize: 4})
	defer hub.Stop()

	t.Run("last unregister drops the room", func(t *testing.T) {
		a, err := hub.Register("s1", "alice")
		require.NoError(t, err)
		b, err := hub.Register("s1", "bob")
		require.NoError(t, err)
		require.Equal(t, 1, hub.RoomCount())

		hub.Unregister(a)
		require.Equal(t, 1, hub.RoomCount())
		hub.Unregister(b)
		require.Equal(t, 0, hub.RoomCount())
	})

	t.Run("publish without channels creates no room", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			res := hub.Publish("unwatched", models.Event{Type: models.EventVoteCast})
			require.Equal(t, 0, res.Delivered)
		}
		require.Equal(t, 0, hub.RoomCount())

		sub, err := hub.Register("unwatched", "alice")
		require.NoError(t, err)
		hub.Publish("unwatched", models.Event{Type: models.EventVoteCast})
		events := drain(sub)
		require.Len(t, events, 1)
		require.Equal(t, int64(11), events[0].Sequence)
	})

	t.Run("eviction of the last channel drops the room", func(t *testing.T) {
		sub, err := hub.Register("s3", "slow")
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			hub.Publish("s3", models.Event{Type: models.EventVoteCast})
		}
		require.Equal(t, CloseReasonOverflow, sub.Reason())
		require.Equal(t, 0, hub.ConnectionCount("s3"))
		require.Equal(t, 0, hub.UserConnections("s3", "slow"))
	})
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(Config{BufferSize: 4})
	hub.Start()

	sub, err := hub.Register("s1", "alice")
	require.NoError(t, err)

	hub.Stop()

	_, ok := <-sub.Events()
	require.False(t, ok)
	require.Equal(t, CloseReasonShutdown, sub.Reason())

	t.Run("register is refused", func(t *testing.T) {
		_, err := hub.Register("s1", "alice")
		require.ErrorIs(t, err, ErrSessionClosed)
		_, err = hub.Register("s2", "bob")
		require.ErrorIs(t, err, ErrSessionClosed)
		require.Equal(t, 0, hub.RoomCount())
	})

	t.Run("publish is dropped", func(t *testing.T) {
		res := hub.Publish("s1", models.Event{Type: models.EventVoteCast})
		require.Equal(t, PublishResult{}, res)
	})

	t.Run("stop twice is harmless", func(t *testing.T) {
		hub.Stop()
	})
}
