package core

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatform marks a failed platform operation (grant, relocation,
	// notification). Never retried automatically.
	ErrPlatform = errors.New("platform operation failed")
	// ErrInvariant marks a programmer error such as registering a room twice.
	ErrInvariant = errors.New("invariant violation")

	ErrNotConnected = errors.New("user is not connected to a room")
	ErrRoomNotFound = errors.New("room not found")
	ErrUserNotFound = errors.New("user not found")
	ErrForbidden    = errors.New("missing permission")
)

// PlatformFailure wraps err so that errors.Is(err, ErrPlatform) holds.
func PlatformFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPlatform, err)
}

// Invariant builds an ErrInvariant error.
func Invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

type RejectionCode string

const (
	RejectSelfTarget    RejectionCode = "self_target"
	RejectBot           RejectionCode = "bot"
	RejectExcluded      RejectionCode = "excluded"
	RejectUnknownUser   RejectionCode = "unknown_user"
	RejectRoomNotFound  RejectionCode = "room_not_found"
	RejectNotManaged    RejectionCode = "not_managed"
	RejectAlreadyInRoom RejectionCode = "already_in_room"
	RejectDuplicate     RejectionCode = "duplicate"
	RejectNoAuthority   RejectionCode = "no_authority"
	RejectNotConnected  RejectionCode = "not_connected"
	RejectNotFound      RejectionCode = "not_found"
	RejectNotPending    RejectionCode = "not_pending"
	RejectUnauthorized  RejectionCode = "unauthorized"
)

// Rejection is a refusal caused by the acting user's input. It is shown to
// that user verbatim and is not an operational error.
type Rejection struct {
	Code    RejectionCode
	Message string
}

func Reject(code RejectionCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (r *Rejection) Error() string { return r.Message }

// Is matches any Rejection carrying the same code.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Code == r.Code
}

// AsRejection unwraps err into a Rejection when it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
