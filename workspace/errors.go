package workspace

import (
	"errors"
	"fmt"
)

// Sentinel errors. Concrete failures wrap one of these; check with errors.Is.
var (
	ErrWorkspaceCreation = errors.New("workspace creation failed")
	ErrPathEscape        = errors.New("path escapes workspace root")
	ErrFileSystem        = errors.New("filesystem operation failed")
	ErrExternalProcess   = errors.New("external process failed")
	ErrProcessTimeout    = errors.New("external process timed out")
)

// CreationError reports that a fresh workspace directory could not be made.
type CreationError struct {
	Path string
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrWorkspaceCreation, e.Path, e.Err)
}

func (e *CreationError) Unwrap() []error {
	return []error{ErrWorkspaceCreation, e.Err}
}

// FileSystemError carries the operation, the workspace-relative path and the
// underlying OS error.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() []error {
	return []error{ErrFileSystem, e.Err}
}

// ProcessError reports a command that exited non-zero, could not start, or
// was killed at its deadline.
type ProcessError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *ProcessError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalProcess}
	}
	return []error{ErrExternalProcess, e.Err}
}

// IsPathEscape reports whether err was caused by a path outside the root.
func IsPathEscape(err error) bool {
	return errors.Is(err, ErrPathEscape)
}

// IsTimeout reports whether err was caused by a process deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrProcessTimeout)
}
