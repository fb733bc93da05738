package services

import "errors"

var (
	// ErrEnrollmentAmbiguous means the enrollment image did not contain
	// exactly one usable face.
	ErrEnrollmentAmbiguous = errors.New("enrollment image must contain exactly one face")

	// ErrCrossClassReference means a confirmation referenced a student who
	// is not on the session's class roster. The whole confirmation aborts.
	ErrCrossClassReference = errors.New("referenced student does not belong to the session's class")

	// ErrInvalidStateTransition means the requested operation is not a legal
	// edge of the session state machine (e.g. re-confirming a confirmed
	// session).
	ErrInvalidStateTransition = errors.New("invalid session state transition")
)
