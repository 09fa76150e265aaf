package domain

import "errors"

// ErrorClass groups domain failures by how callers are expected to react.
type ErrorClass string

const (
	ClassNotFound       ErrorClass = "not_found"
	ClassConflict       ErrorClass = "conflict"
	ClassPrecondition   ErrorClass = "precondition_failed"
	ClassInvalid        ErrorClass = "invalid"
	ClassNotParticipant ErrorClass = "not_participant"
	ClassForbidden      ErrorClass = "forbidden"
)

// Error is a classified domain failure. Sentinel values are wrapped with
// fmt.Errorf("...: %w", ErrX) and matched with errors.Is.
type Error struct {
	Class   ErrorClass
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNotFound is returned when an activity, session or match does not exist.
	ErrNotFound = &Error{Class: ClassNotFound, Code: "not_found", Message: "resource not found"}
	// ErrAlreadyJoined rejects a second participant record for the same user.
	ErrAlreadyJoined = &Error{Class: ClassConflict, Code: "already_joined", Message: "user already participates"}
	// ErrAlreadySubscribed rejects a duplicate subscription.
	ErrAlreadySubscribed = &Error{Class: ClassConflict, Code: "already_subscribed", Message: "user already subscribed"}
	// ErrSameUser rejects a replacement whose source and target are identical.
	ErrSameUser = &Error{Class: ClassConflict, Code: "same_user", Message: "replacement requires two different users"}
	// ErrRegistrationClosed is returned once the roster cutoff has passed or the roster is completed.
	ErrRegistrationClosed = &Error{Class: ClassPrecondition, Code: "registration_closed", Message: "registration is closed"}
	// ErrSessionCancelled is returned when joining a cancelled session or match.
	ErrSessionCancelled = &Error{Class: ClassPrecondition, Code: "session_cancelled", Message: "session is cancelled"}
	// ErrSessionCompleted is returned when cancelling a session that already took place.
	ErrSessionCompleted = &Error{Class: ClassPrecondition, Code: "session_completed", Message: "session is completed"}
	// ErrInvalidHorizon is returned for a generation horizon outside 1..8 weeks.
	ErrInvalidHorizon = &Error{Class: ClassInvalid, Code: "invalid_horizon", Message: "weeks ahead must be between 1 and 8"}
	// ErrInvalidArgument covers malformed input that is not a more specific failure.
	ErrInvalidArgument = &Error{Class: ClassInvalid, Code: "invalid_argument", Message: "invalid argument"}
	// ErrNotParticipant is returned when removing a user who has no participant record.
	ErrNotParticipant = &Error{Class: ClassNotParticipant, Code: "not_participant", Message: "user is not a participant"}
	// ErrForbidden is returned when the actor may not manage the target resource.
	ErrForbidden = &Error{Class: ClassForbidden, Code: "forbidden", Message: "operation not permitted"}
)

// AsError extracts the first classified error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
