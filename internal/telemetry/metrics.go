package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/planpoker"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session metrics
	SessionsCreatedTotal metric.Int64Counter
	SessionsEndedTotal   metric.Int64Counter

	// Round metrics
	VotesCastTotal       metric.Int64Counter
	RoundsRevealedTotal  metric.Int64Counter
	RoundsFinalizedTotal metric.Int64Counter
	RevotesTotal         metric.Int64Counter
	OperationDuration    metric.Float64Histogram

	// Broadcast metrics
	EventsPublishedTotal metric.Int64Counter
	EventsDeliveredTotal metric.Int64Counter
	ChannelOverflowTotal metric.Int64Counter
	ActiveChannels       metric.Int64UpDownCounter

	// Collaborator metrics
	TrackerSyncTotal       metric.Int64Counter
	TrackerSyncErrorsTotal metric.Int64Counter
	NotificationErrors     metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates instruments on the global meter provider. Until
// telemetry is initialized the provider is a no-op.
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"planpoker.sessions.created.total",
		metric.WithDescription("Total number of sessions created"),
		metric.WithUnit("{session}"),
	)

	m.SessionsEndedTotal, _ = meter.Int64Counter(
		"planpoker.sessions.ended.total",
		metric.WithDescription("Total number of sessions ended"),
		metric.WithUnit("{session}"),
	)

	m.VotesCastTotal, _ = meter.Int64Counter(
		"planpoker.votes.cast.total",
		metric.WithDescription("Total number of votes recorded"),
		metric.WithUnit("{vote}"),
	)

	m.RoundsRevealedTotal, _ = meter.Int64Counter(
		"planpoker.rounds.revealed.total",
		metric.WithDescription("Total number of rounds revealed"),
		metric.WithUnit("{round}"),
	)

	m.RoundsFinalizedTotal, _ = meter.Int64Counter(
		"planpoker.rounds.finalized.total",
		metric.WithDescription("Total number of rounds finalized"),
		metric.WithUnit("{round}"),
	)

	m.RevotesTotal, _ = meter.Int64Counter(
		"planpoker.rounds.revotes.total",
		metric.WithDescription("Total number of re-vote rounds started"),
		metric.WithUnit("{round}"),
	)

	m.OperationDuration, _ = meter.Float64Histogram(
		"planpoker.engine.operation.duration",
		metric.WithDescription("Duration of engine state transitions"),
		metric.WithUnit("ms"),
	)

	m.EventsPublishedTotal, _ = meter.Int64Counter(
		"planpoker.events.published.total",
		metric.WithDescription("Total number of events published to sessions"),
		metric.WithUnit("{event}"),
	)

	m.EventsDeliveredTotal, _ = meter.Int64Counter(
		"planpoker.events.delivered.total",
		metric.WithDescription("Total number of events queued to channels"),
		metric.WithUnit("{event}"),
	)

	m.ChannelOverflowTotal, _ = meter.Int64Counter(
		"planpoker.channels.overflow.total",
		metric.WithDescription("Total number of channels evicted because their buffer was full"),
		metric.WithUnit("{channel}"),
	)

	m.ActiveChannels, _ = meter.Int64UpDownCounter(
		"planpoker.channels.active",
		metric.WithDescription("Number of connected event channels"),
		metric.WithUnit("{channel}"),
	)

	m.TrackerSyncTotal, _ = meter.Int64Counter(
		"planpoker.tracker.sync.total",
		metric.WithDescription("Total number of external tracker sync attempts"),
		metric.WithUnit("{sync}"),
	)

	m.TrackerSyncErrorsTotal, _ = meter.Int64Counter(
		"planpoker.tracker.sync.errors.total",
		metric.WithDescription("Total number of failed external tracker syncs"),
		metric.WithUnit("{error}"),
	)

	m.NotificationErrors, _ = meter.Int64Counter(
		"planpoker.notifications.errors.total",
		metric.WithDescription("Total number of failed notification dispatches"),
		metric.WithUnit("{error}"),
	)

	return m
}
