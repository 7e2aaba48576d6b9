package activity

import "errors"

// Errors returned by Activity operations.
//
// All of them are raised synchronously by the call that violates an
// invariant and are never retried. Check them with errors.Is():
//
//	if errors.Is(err, activity.ErrNotSupported) {
//	    // the backend cannot store this change
//	}
var (
	// ErrInvalidConstruction is returned by New when both a backend and an
	// initial document are given.
	ErrInvalidConstruction = errors.New("cannot construct an activity with both a backend and a document")

	// ErrIllegalRebind is returned when an activity bound to one backend is
	// assigned to another one. Use Backend.Save to copy it instead.
	ErrIllegalRebind = errors.New("activity is already bound to a different backend")

	// ErrIllegalUnbind is returned when the backend of a bound activity is
	// set to nil. Use Clone to get an unbound copy.
	ErrIllegalUnbind = errors.New("activity cannot be decoupled from its backend")

	// ErrNoBackend is returned by Save on an unbound activity.
	ErrNoBackend = errors.New("activity has no backend")

	// ErrReservedKeyword is returned when a keyword uses the What: or
	// Status: prefix. Those are set through the what and public attributes.
	ErrReservedKeyword = errors.New("reserved keyword")

	// ErrEmptyKeyword is returned for keywords that are empty after
	// trimming.
	ErrEmptyKeyword = errors.New("empty keyword")

	// ErrDuplicateKeyword is returned when adding a keyword that is
	// already present.
	ErrDuplicateKeyword = errors.New("duplicate keyword")

	// ErrIllegalWhat is returned for activity types outside LegalWhat.
	ErrIllegalWhat = errors.New("illegal activity type")

	// ErrNotSupported is returned when the backend lacks the capability
	// for the requested operation.
	ErrNotSupported = errors.New("operation not supported by this backend")

	// ErrDuplicatePoints is returned by AddPoints when the points are
	// identical to the current tail of the track.
	ErrDuplicatePoints = errors.New("points are already present")
)

// IsProgrammingError returns true if err is caused by calling the API in a
// way that can never succeed, as opposed to a backend capability mismatch or
// an I/O failure.
func IsProgrammingError(err error) bool {
	if err == nil {
		return false
	}

	for _, target := range []error{
		ErrInvalidConstruction,
		ErrIllegalRebind,
		ErrIllegalUnbind,
		ErrNoBackend,
		ErrReservedKeyword,
		ErrEmptyKeyword,
		ErrDuplicateKeyword,
		ErrIllegalWhat,
		ErrDuplicatePoints,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotSupported returns true if err reports a missing backend capability.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
