package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/planpoker/internal/engine"
)

// toConnectError maps engine error kinds to RPC codes. Errors that did not
// originate in the engine are logged and replaced with a generic message.
func toConnectError(ctx context.Context, err error) error {
	var engineErr *engine.Error
	if !errors.As(err, &engineErr) {
		if errors.Is(err, context.Canceled) {
			return connect.NewError(connect.CodeCanceled, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return connect.NewError(connect.CodeDeadlineExceeded, err)
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("Internal error")
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}

	var code connect.Code
	switch engineErr.Kind {
	case engine.KindUnauthorized:
		code = connect.CodeUnauthenticated
	case engine.KindForbidden:
		code = connect.CodePermissionDenied
	case engine.KindNotFound:
		code = connect.CodeNotFound
	case engine.KindInvalidInput:
		code = connect.CodeInvalidArgument
	case engine.KindConflict:
		code = connect.CodeFailedPrecondition
	default:
		code = connect.CodeInternal
	}

	cerr := connect.NewError(code, errors.New(engineErr.Message))
	cerr.Meta().Set(ErrorCodeHeader, engineErr.Code)
	return cerr
}

// ErrorCodeHeader carries the engine error code so clients can tell apart
// errors sharing an RPC code.
const ErrorCodeHeader = "Planpoker-Error-Code"
