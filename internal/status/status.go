// Package status defines the error kinds shared across the catalog, store
// and map layers, and keeps the process-wide last-error slot used for
// diagnostic retrieval at the library boundary.
package status

import (
	"errors"
	"fmt"
	"sync"
)

// Error kinds. Callers match with errors.Is; every failure returned from a
// public operation wraps exactly one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCreateFailed    = errors.New("create failed")
	ErrOpenFailed      = errors.New("open failed")
	ErrSaveFailed      = errors.New("save failed")
	ErrDeleteFailed    = errors.New("delete failed")
	ErrRenameFailed    = errors.New("rename failed")
	ErrMoveFailed      = errors.New("move failed")
	ErrCopyFailed      = errors.New("copy failed")
	ErrUnsupported     = errors.New("unsupported")
	ErrCanceled        = errors.New("canceled")
)

var (
	lastMu  sync.Mutex
	lastMsg string
)

// Errorf builds an error of the given kind with a formatted message and
// records it in the last-error slot.
func Errorf(kind error, format string, args ...interface{}) error {
	err := fmt.Errorf(format+": %w", append(args, kind)...)
	SetLast(err)
	return err
}

// SetLast records err as the most recent library error. A nil err clears
// the slot.
func SetLast(err error) {
	lastMu.Lock()
	defer lastMu.Unlock()
	if err == nil {
		lastMsg = ""
		return
	}
	lastMsg = err.Error()
}

// Last returns the message of the most recent library error, or "" if none.
func Last() string {
	lastMu.Lock()
	defer lastMu.Unlock()
	return lastMsg
}
