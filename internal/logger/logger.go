package logger

import (
	"context"
	"errors"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/planpoker/internal/auth"
	httpmiddleware "github.com/wolfeidau/planpoker/internal/http"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

var _ connect.Interceptor = (*ConnectRequests)(nil)

// ConnectRequests logs each RPC and attaches a request scoped logger to the
// handler context.
type ConnectRequests struct {
	logger zerolog.Logger
}

func NewConnectRequests(logger zerolog.Logger) *ConnectRequests {
	return &ConnectRequests{logger: logger}
}

func (c *ConnectRequests) requestLogger(ctx context.Context, procedure string, peer connect.Peer) zerolog.Logger {
	lc := c.logger.With().
		Str("procedure", procedure).
		Str("protocol", peer.Protocol).
		Str("addr", peer.Addr)

	if ip := httpmiddleware.ClientIPFromContext(ctx); ip != "" {
		lc = lc.Str("client_ip", ip)
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		lc = lc.Str("user_id", id.UserID)
	}
	return lc.Logger()
}

func (c *ConnectRequests) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return connect.UnaryFunc(func(
		ctx context.Context,
		req connect.AnyRequest,
	) (connect.AnyResponse, error) {
		started := time.Now()

		// client side calls are not logged
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		logger := c.requestLogger(ctx, req.Spec().Procedure, req.Peer())
		ctx = logger.WithContext(ctx)

		resp, err := next(ctx, req)
		if err != nil {
			errorEvent(ctx, err).
				Dur("duration", time.Since(started)).
				Msg("rpc call")

			return resp, err
		}

		zerolog.Ctx(ctx).Info().
			Dur("duration", time.Since(started)).
			Msg("rpc call")

		return resp, err
	})
}

func (c *ConnectRequests) WrapStreamingClient(
	next connect.StreamingClientFunc,
) connect.StreamingClientFunc {
	return next
}

func (c *ConnectRequests) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return connect.StreamingHandlerFunc(func(
		ctx context.Context,
		conn connect.StreamingHandlerConn,
	) error {
		started := time.Now()

		logger := c.requestLogger(ctx, conn.Spec().Procedure, conn.Peer())
		ctx = logger.WithContext(ctx)

		zerolog.Ctx(ctx).Debug().Msg("rpc server stream started")

		err := next(ctx, conn)
		if err != nil {
			errorEvent(ctx, err).
				Dur("duration", time.Since(started)).
				Msg("rpc server stream error")
			return err
		}

		zerolog.Ctx(ctx).Info().
			Dur("duration", time.Since(started)).
			Msg("rpc server stream finished")

		return nil
	})
}

// errorEvent logs caller mistakes at warn and everything else at error.
func errorEvent(ctx context.Context, err error) *zerolog.Event {
	code := connect.CodeOf(err)

	var evt *zerolog.Event
	switch code {
	case connect.CodeInvalidArgument, connect.CodeNotFound, connect.CodeFailedPrecondition,
		connect.CodeAlreadyExists, connect.CodePermissionDenied, connect.CodeUnauthenticated,
		connect.CodeCanceled, connect.CodeResourceExhausted:
		evt = zerolog.Ctx(ctx).Warn()
	default:
		evt = zerolog.Ctx(ctx).Error()
	}

	evt = evt.Err(err).Str("code", code.String())

	var cerr *connect.Error
	if errors.As(err, &cerr) {
		if engineCode := cerr.Meta().Get("Planpoker-Error-Code"); engineCode != "" {
			evt = evt.Str("error_code", engineCode)
		}
	}
	return evt
}
