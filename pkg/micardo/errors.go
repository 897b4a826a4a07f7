package micardo

import (
	"errors"
	"fmt"

	"github.com/rliebscher/OpenSC/pkg/iso7816"
)

// Error taxonomy of the driver:
//
//   - Transport failures bubble up from the Client unchanged.
//   - Card rejections become a StatusError carrying the status word; the two
//     well-known file-system statuses are matchable as sentinels via
//     errors.Is.
//   - Caller misuse (malformed paths, unsupported operations) is rejected
//     with ErrInvalidArguments before anything is transmitted.
//   - ErrInternal marks conditions that indicate a bug in the caller or the
//     driver (cache depth exceeded, cache invariant broken), not a runtime
//     condition to recover from.

var (
	// ErrInvalidArguments marks caller misuse detected before any command
	// is sent to the card.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrInternal marks a broken invariant, e.g. a selection path deeper
	// than the cache can represent.
	ErrInternal = errors.New("internal consistency error")

	// ErrUnknownData is returned when a selection response cannot be
	// recognized as file control information.
	ErrUnknownData = errors.New("unknown data received from card")

	// ErrFileNotFound matches a StatusError with status word 6A82.
	ErrFileNotFound = errors.New("file not found")

	// ErrRecordNotFound matches a StatusError with status word 6A83.
	ErrRecordNotFound = errors.New("record not found")

	// ErrKeyReferenceNotFound is returned when no key-directory record maps
	// the requested file identifier.
	ErrKeyReferenceNotFound = errors.New("key reference not found")
)

// StatusError reports a command the card rejected.
type StatusError struct {
	SW iso7816.StatusWord
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("card error: %s", e.SW.Verbose())
}

// Is maps the well-known file-system status words onto their sentinels so
// callers can classify failures with errors.Is.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrFileNotFound:
		return e.SW == iso7816.SWErrFileNotFound
	case ErrRecordNotFound:
		return e.SW == iso7816.SWErrRecordNotFound
	}
	return false
}

// CheckStatus converts the final status word of an exchange into an error.
// Success (9000 or 61XX) yields nil.
func CheckStatus(sw iso7816.StatusWord) error {
	if sw.IsSuccess() {
		return nil
	}
	return &StatusError{SW: sw}
}
