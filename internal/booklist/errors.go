package booklist

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleRow reports a row position that no longer exists, usually
	// because the list was rebuilt since the caller read it. Public
	// operations treat it as a no-op.
	ErrStaleRow = errors.New("stale row reference")
	// ErrNotBuilt is returned by operations that need a built list.
	ErrNotBuilt = errors.New("booklist not built")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("booklist closed")
	// ErrUnsupportedJoin is returned by RequireJoin for tables the compiler
	// cannot join.
	ErrUnsupportedJoin = errors.New("unsupported join")
)

// StorageError wraps a failure from the database during a build stage. The
// build has been rolled back and must be re-run.
type StorageError struct {
	Stage string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("booklist %s: %v", e.Stage, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
