package engine

import "errors"

// Kind classifies engine errors for the transport layer.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error is a typed engine error. Errors compare equal by Code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors with the same code so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrUnauthenticated = newError(KindUnauthorized, "unauthenticated", "not authenticated")

	ErrNotHost        = newError(KindForbidden, "not_host", "only the host can perform this action")
	ErrNotParticipant = newError(KindForbidden, "not_participant", "caller is not a participant in this session")

	ErrSessionNotFound = newError(KindNotFound, "session_not_found", "session not found")
	ErrStoryNotFound   = newError(KindNotFound, "story_not_found", "story not found")
	ErrRoundNotFound   = newError(KindNotFound, "round_not_found", "no voting round exists for this story")

	ErrInvalidValue    = newError(KindInvalidInput, "invalid_value", "card value is not in the deck")
	ErrCommentTooLong  = newError(KindInvalidInput, "comment_too_long", "comment exceeds 200 characters")
	ErrInvalidEstimate = newError(KindInvalidInput, "invalid_estimate", "final estimate must be a non-negative number")
	ErrInvalidInput    = newError(KindInvalidInput, "invalid_input", "invalid input")

	ErrRoundClosed      = newError(KindConflict, "round_closed", "no open round is accepting votes")
	ErrAlreadyRevealed  = newError(KindConflict, "already_revealed", "round has already been revealed")
	ErrRoundNotRevealed = newError(KindConflict, "round_not_revealed", "round has not been revealed")
	ErrAlreadyFinalized = newError(KindConflict, "already_finalized", "round has already been finalized")
	ErrMaxRoundsReached = newError(KindConflict, "max_rounds_reached", "maximum number of voting rounds reached")
	ErrAlreadyEnded     = newError(KindConflict, "already_ended", "session has already ended")
	ErrSessionInactive  = newError(KindConflict, "session_inactive", "session is not active")
	ErrSessionEnded     = newError(KindConflict, "session_ended", "session has ended")
)

// KindOf returns the kind of err, or KindInternal for errors that did not
// originate in the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// invalidInput returns an InvalidInput error with a specific message.
func invalidInput(message string) error {
	return &Error{Kind: KindInvalidInput, Code: ErrInvalidInput.Code, Message: message}
}
