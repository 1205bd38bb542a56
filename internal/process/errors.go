package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

var (
	ErrAlreadyRunning = errors.New("process: already running")
	ErrExited         = errors.New("process: exited unexpectedly")
	ErrUnhealthy      = errors.New("process: health check failed")
	ErrNoDisplay      = errors.New("process: no display connected")
)

// RecoverableError is implemented by errors that know whether a restart
// could succeed.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether err should be retried. Errors that don't
// implement RecoverableError are treated as transient.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// startError wraps a failed exec. A missing or non-executable binary will
// not fix itself between attempts.
type startError struct {
	name string
	err  error
}

func (e *startError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.name, e.err)
}

func (e *startError) Unwrap() error { return e.err }

func (e *startError) IsRecoverable() bool {
	return !errors.Is(e.err, exec.ErrNotFound) &&
		!errors.Is(e.err, fs.ErrNotExist) &&
		!errors.Is(e.err, fs.ErrPermission)
}
