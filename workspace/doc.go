// Package workspace confines an agent session to one directory on disk.
//
// A Sandbox is created per session as <base>/agent-app-<uuid>. All file
// operations take paths relative to that root; Resolve rejects absolute
// paths, ".." traversal and symlinks that lead outside it. External commands
// run with the root as working directory, a filtered environment, and their
// own process group so a timeout or cancellation kills the whole tree.
//
// Failures are typed: *CreationError, *FileSystemError and *ProcessError each
// wrap a sentinel (ErrWorkspaceCreation, ErrFileSystem, ErrExternalProcess)
// so callers can branch with errors.Is and errors.As.
package workspace
