package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"github.com/rs/zerolog"
	globallog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/auth"
	"github.com/wolfeidau/planpoker/internal/broadcast"
	"github.com/wolfeidau/planpoker/internal/engine"
	httpmiddleware "github.com/wolfeidau/planpoker/internal/http"
	"github.com/wolfeidau/planpoker/internal/logger"
	"github.com/wolfeidau/planpoker/internal/notify"
	"github.com/wolfeidau/planpoker/internal/server"
	"github.com/wolfeidau/planpoker/internal/store"
	memorystore "github.com/wolfeidau/planpoker/internal/store/memory"
	postgresstore "github.com/wolfeidau/planpoker/internal/store/postgres"
	"github.com/wolfeidau/planpoker/internal/telemetry"
	"github.com/wolfeidau/planpoker/internal/tracker"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"PLANPOKER_LISTEN"`
	Cert   string `help:"path to TLS cert file, plaintext HTTP/2 is served when unset" default:"" env:"PLANPOKER_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"PLANPOKER_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:5173" env:"PLANPOKER_CORS_ORIGINS"`

	// Authentication
	NoAuth     bool   `help:"trust X-User-* identity headers instead of bearer tokens (development only)" default:"false" env:"PLANPOKER_NO_AUTH"`
	AuthSecret string `help:"HMAC secret used to verify bearer tokens" default:"" env:"PLANPOKER_AUTH_SECRET"`
	AuthIssuer string `help:"required token issuer, empty accepts any" default:"planpoker" env:"PLANPOKER_AUTH_ISSUER"`

	// Telemetry
	Tracing     bool    `help:"enable tracing and metrics export" default:"false" env:"PLANPOKER_TRACING"`
	SampleRatio float64 `help:"trace sample ratio between 0 and 1" default:"1.0" env:"PLANPOKER_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"PLANPOKER_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	Tracker TrackerFlags `embed:"" prefix:"tracker-"`
	Hub     HubFlags     `embed:"" prefix:"hub-"`

	SideEffectTimeout time.Duration `help:"timeout for tracker sync and notifications" default:"30s" env:"PLANPOKER_SIDE_EFFECT_TIMEOUT"`
	ShutdownTimeout   time.Duration `help:"grace period for in-flight requests on shutdown" default:"15s" env:"PLANPOKER_SHUTDOWN_TIMEOUT"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	QueryTimeoutSeconds int32 `help:"timeout in seconds for each store operation" default:"10"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"PLANPOKER_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if s.MinConns > s.MaxConns {
		return errors.New("--postgres-min-conns cannot exceed --postgres-max-conns")
	}
	return nil
}

// TrackerFlags configures the issue tracker that receives final estimates.
type TrackerFlags struct {
	URL        string        `help:"issue tracker API base URL, sync is disabled when unset" default:"" env:"PLANPOKER_TRACKER_URL"`
	Token      string        `help:"issue tracker API token" default:"" env:"PLANPOKER_TRACKER_TOKEN"`
	MaxRetries uint          `help:"attempts per tracker call" default:"5" env:"PLANPOKER_TRACKER_MAX_RETRIES"`
	Timeout    time.Duration `help:"timeout per tracker request" default:"10s" env:"PLANPOKER_TRACKER_TIMEOUT"`
}

// HubFlags configures event fan-out.
type HubFlags struct {
	BufferSize       int           `help:"events buffered per connection before it is dropped" default:"64" env:"PLANPOKER_HUB_BUFFER_SIZE"`
	ClosedSessionTTL time.Duration `help:"how long ended sessions refuse new connections" default:"24h" env:"PLANPOKER_HUB_CLOSED_SESSION_TTL"`
	IdleSequenceTTL  time.Duration `help:"how long event sequences of sessions with no connections are kept" default:"24h" env:"PLANPOKER_HUB_IDLE_SEQUENCE_TTL"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	globallog.Logger = log
	zerolog.DefaultContextLogger = &log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	interceptors := []connect.Interceptor{logger.NewConnectRequests(log)}
	if c.Tracing {
		log.Info().Float64("sample_ratio", c.SampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "planpoker-server", globals.Version, c.SampleRatio)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			return fmt.Errorf("failed to create OTEL interceptor: %w", err)
		}
		interceptors = append(interceptors, otelInterceptor)
	}

	sessionStore, roundStore, closeStores, err := c.openStores(ctx, log)
	if err != nil {
		return err
	}
	defer closeStores()

	syncer, err := c.Tracker.syncer()
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(broadcast.Config{
		BufferSize:       c.Hub.BufferSize,
		ClosedSessionTTL: c.Hub.ClosedSessionTTL,
		IdleSequenceTTL:  c.Hub.IdleSequenceTTL,
	})
	hub.Start()

	eng, err := engine.New(engine.Config{
		Sessions:          sessionStore,
		Rounds:            roundStore,
		Hub:               hub,
		Tracker:           syncer,
		Notifier:          notify.NewLogDispatcher(log),
		SideEffectTimeout: c.SideEffectTimeout,
	})
	if err != nil {
		hub.Stop()
		return fmt.Errorf("failed to create engine: %w", err)
	}

	authMiddleware, err := c.authMiddleware(log)
	if err != nil {
		hub.Stop()
		return err
	}

	var handler http.Handler = server.NewServer(eng).Handler(authMiddleware, interceptors...)
	handler = httpmiddleware.CORSMiddleware(c.CORSOrigins)(handler)
	handler = httpmiddleware.ClientIPMiddleware()(handler)

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.serve(srv, log)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	// closing the hub ends open event streams so Shutdown is not held up by them
	hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("Failed to shutdown HTTP server")
	}

	eng.Wait()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (c *ServerCmd) serve(srv *http.Server, log zerolog.Logger) error {
	if c.Cert == "" && c.Key == "" {
		log.Info().Str("addr", c.Listen).Bool("auth", !c.NoAuth).Msg("Starting HTTP server (h2c)")
		srv.Handler = h2c.NewHandler(srv.Handler, &http2.Server{})
		return srv.ListenAndServe()
	}

	if c.Cert == "" || c.Key == "" {
		return errors.New("both --cert and --key are required for TLS")
	}
	if _, err := os.Stat(c.Cert); err != nil {
		return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
	}
	if _, err := os.Stat(c.Key); err != nil {
		return fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
	}

	log.Info().Str("addr", c.Listen).Bool("auth", !c.NoAuth).Msg("Starting HTTPS server")
	return srv.ListenAndServeTLS(c.Cert, c.Key)
}

func (c *ServerCmd) openStores(ctx context.Context, log zerolog.Logger) (store.SessionStore, store.RoundStore, func(), error) {
	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, nil, nil, err
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		storeCfg := &postgresstore.StoreConfig{QueryTimeoutSeconds: c.PostgresStore.QueryTimeoutSeconds}
		storeCfg.ApplyDefaults()

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")
		return postgresstore.NewSessionStore(pool, storeCfg), postgresstore.NewRoundStore(pool, storeCfg), pool.Close, nil

	default:
		log.Info().Msg("Using in-memory stores")
		return memorystore.NewSessionStore(), memorystore.NewRoundStore(), func() {}, nil
	}
}

func (c *ServerCmd) authMiddleware(log zerolog.Logger) (func(http.Handler) http.Handler, error) {
	if c.NoAuth {
		log.Warn().Msg("Authentication is disabled (--no-auth). This should only be used in development!")
		return auth.HeaderMiddleware(), nil
	}

	verifier, err := auth.NewJWTVerifier(c.AuthSecret, c.AuthIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier (--auth-secret or PLANPOKER_AUTH_SECRET): %w", err)
	}
	return verifier.Middleware(), nil
}

func (t TrackerFlags) syncer() (tracker.Syncer, error) {
	if t.URL == "" {
		return tracker.Noop{}, nil
	}

	syncer, err := tracker.NewHTTPSyncer(tracker.Config{
		BaseURL:    t.URL,
		Token:      t.Token,
		Timeout:    t.Timeout,
		MaxRetries: t.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker client: %w", err)
	}
	return syncer, nil
}
