package ledger

import (
	"errors"
	"fmt"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation errors are raised before any record is touched.
	KindValidation
	// KindCollision means a record already occupies the derived address.
	KindCollision
	KindPrecondition
	KindUnauthorized
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCollision:
		return "collision"
	case KindPrecondition:
		return "precondition"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Code   string
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func newError(kind Kind, code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

var (
	ErrPollDescriptionTooLong = newError(KindValidation, "PollDescriptionTooLong",
		fmt.Sprintf("poll description exceeds %d bytes", models.MaxPollDescription))
	ErrOptionDescriptionTooLong = newError(KindValidation, "OptionDescriptionTooLong",
		fmt.Sprintf("option description exceeds %d bytes", models.MaxOptionDescription))
	ErrMalformedText      = newError(KindValidation, "MalformedText", "descriptions must be valid UTF-8 without NUL bytes")
	ErrNoOptions          = newError(KindValidation, "NoOptions", "poll must have at least one option")
	ErrTooManyOptions     = newError(KindValidation, "TooManyOptions", fmt.Sprintf("poll cannot have more than %d options", models.MaxOptions))
	ErrInvalidOptionIndex = newError(KindValidation, "InvalidOptionIndex", "option index is out of range")

	ErrPollExists   = newError(KindCollision, "PollExists", "a poll already exists at this address")
	ErrAlreadyVoted = newError(KindCollision, "AlreadyVoted", "voter has already voted on this poll")

	ErrPollNotFound = newError(KindPrecondition, "PollNotFound", "poll does not exist")
	ErrPollClosed   = newError(KindPrecondition, "PollClosed", "poll is closed")

	ErrNotAuthority = newError(KindUnauthorized, "NotAuthority", "caller is not the poll authority")

	ErrVoterRecordNotFound = newError(KindNotFound, "VoterRecordNotFound", "voter record does not exist")
)

// KindOf unwraps err down to a ledger error and reports its kind.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable failure code of err, or an empty string.
func CodeOf(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
