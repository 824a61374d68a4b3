package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirPrefix names every workspace directory created under a base path.
const DirPrefix = "agent-app-"

var (
	errEmptyPath  = errors.New("empty path")
	errRootDelete = errors.New("refusing to delete the workspace root")
	errNotDir     = errors.New("not a directory")
	errIsDir      = errors.New("is a directory")
	errNotUTF8    = errors.New("file is not valid UTF-8 text")

	errTooManyLinks = errors.New("too many levels of symbolic links")
)

// Sandbox is one session's workspace directory. Every path handed to it is
// interpreted relative to Root and must stay inside it.
type Sandbox struct {
	root   string
	logger *zap.Logger
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithLogger sets the logger used for filesystem and process activity.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sandbox) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Create makes a fresh <base>/agent-app-<uuid> directory and returns a
// Sandbox rooted there.
func Create(base string, opts ...Option) (*Sandbox, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, &CreationError{Path: base, Err: err}
	}
	dir := filepath.Join(absBase, DirPrefix+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CreationError{Path: dir, Err: err}
	}
	s, err := Open(dir, opts...)
	if err != nil {
		return nil, &CreationError{Path: dir, Err: err}
	}
	s.logger.Info("workspace created", zap.String("root", s.root))
	return s, nil
}

// Open wraps an existing directory.
func Open(root string, opts ...Option) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open workspace: %s: %w", resolved, errNotDir)
	}
	s := &Sandbox{root: resolved, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute workspace path.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve maps a workspace-relative path to an absolute one. Absolute paths,
// ".." escapes and symlinks pointing outside the root are rejected with an
// error matching ErrPathEscape.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", &FileSystemError{Op: "resolve", Path: rel, Err: errEmptyPath}
	}
	if filepath.IsAbs(rel) {
		return "", &FileSystemError{Op: "resolve", Path: rel, Err: ErrPathEscape}
	}

	joined := filepath.Join(s.root, rel)
	if !s.contains(joined) {
		return "", &FileSystemError{Op: "resolve", Path: rel, Err: ErrPathEscape}
	}

	if err := s.checkLinks(joined); err != nil {
		return "", &FileSystemError{Op: "resolve", Path: rel, Err: err}
	}
	return joined, nil
}

// maxLinks bounds how many symlinks checkLinks follows for one path.
const maxLinks = 40

// checkLinks walks path one component at a time from the root and follows
// every symlink it meets, dangling or not. A link whose target leaves the
// root fails with ErrPathEscape. Components that do not exist yet end the
// walk.
func (s *Sandbox) checkLinks(path string) error {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return err
	}
	rest := splitPath(rel)
	dir := s.root
	for links := 0; len(rest) > 0; {
		next := filepath.Join(dir, rest[0])
		info, err := os.Lstat(next)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			dir, rest = next, rest[1:]
			continue
		}

		if links++; links > maxLinks {
			return errTooManyLinks
		}
		target, err := os.Readlink(next)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		target = filepath.Clean(target)
		if !s.contains(target) {
			return fmt.Errorf("%w: symlink target %s", ErrPathEscape, target)
		}
		inside, err := filepath.Rel(s.root, target)
		if err != nil {
			return err
		}
		dir, rest = s.root, append(splitPath(inside), rest[1:]...)
	}
	return nil
}

func splitPath(rel string) []string {
	var parts []string
	for _, p := range strings.Split(rel, string(filepath.Separator)) {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

func (s *Sandbox) contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// CreateFile writes content to a new or existing file, creating parent
// directories as needed. It returns the absolute path written.
func (s *Sandbox) CreateFile(rel, content string) (string, error) {
	return s.writeFile("create_file", rel, content)
}

// UpdateFile replaces the content of a file and returns its absolute path.
func (s *Sandbox) UpdateFile(rel, content string) (string, error) {
	return s.writeFile("update_file", rel, content)
}

func (s *Sandbox) writeFile(op, rel, content string) (string, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &FileSystemError{Op: op, Path: rel, Err: err}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", &FileSystemError{Op: op, Path: rel, Err: err}
	}
	s.logger.Debug("file written", zap.String("op", op), zap.String("path", path), zap.Int("bytes", len(content)))
	return path, nil
}

// ReadFile returns the UTF-8 content of a file.
func (s *Sandbox) ReadFile(rel string) (string, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &FileSystemError{Op: "read_file", Path: rel, Err: err}
	}
	if !utf8.Valid(data) {
		return "", &FileSystemError{Op: "read_file", Path: rel, Err: errNotUTF8}
	}
	return string(data), nil
}

// DeleteFile removes a single file and returns its absolute path.
func (s *Sandbox) DeleteFile(rel string) (string, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return "", &FileSystemError{Op: "delete_file", Path: rel, Err: err}
	}
	if info.IsDir() {
		return "", &FileSystemError{Op: "delete_file", Path: rel, Err: errIsDir}
	}
	if err := os.Remove(path); err != nil {
		return "", &FileSystemError{Op: "delete_file", Path: rel, Err: err}
	}
	s.logger.Debug("file deleted", zap.String("path", path))
	return path, nil
}

// CreateFolder creates a directory and any missing parents.
func (s *Sandbox) CreateFolder(rel string) (string, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", &FileSystemError{Op: "create_folder", Path: rel, Err: err}
	}
	s.logger.Debug("folder created", zap.String("path", path))
	return path, nil
}

// DeleteFolder removes a directory and everything below it. The root itself
// cannot be deleted.
func (s *Sandbox) DeleteFolder(rel string) (string, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	if path == s.root {
		return "", &FileSystemError{Op: "delete_folder", Path: rel, Err: errRootDelete}
	}
	info, err := os.Lstat(path)
	if err != nil {
		return "", &FileSystemError{Op: "delete_folder", Path: rel, Err: err}
	}
	if !info.IsDir() {
		return "", &FileSystemError{Op: "delete_folder", Path: rel, Err: errNotDir}
	}
	if err := os.RemoveAll(path); err != nil {
		return "", &FileSystemError{Op: "delete_folder", Path: rel, Err: err}
	}
	s.logger.Debug("folder deleted", zap.String("path", path))
	return path, nil
}

// List returns the sorted entry names of a directory. "" and "." list the
// root.
func (s *Sandbox) List(rel string) ([]string, error) {
	path := s.root
	if rel != "" && rel != "." {
		var err error
		if path, err = s.Resolve(rel); err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, &FileSystemError{Op: "list", Path: rel, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}
