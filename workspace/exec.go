package workspace

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Summary renders a successful run for display. Output on stderr does not
// make the run a failure; it only changes the wording.
func (r ExecResult) Summary(label string) string {
	if strings.TrimSpace(r.Stderr) != "" {
		return label + " encountered warnings/errors:\n" + r.Stderr
	}
	return label + " completed successfully:\n" + r.Stdout
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// that are never passed to child processes.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"NVM_DIR": true, "NPM_CONFIG_PREFIX": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

func filterEnvironment(environ []string) []string {
	var filtered []string
	for _, env := range environ {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// Exec runs name with args inside the workspace root. The child gets its own
// process group, which is killed as a whole when timeout elapses or ctx is
// cancelled. A zero timeout means ctx alone bounds the run.
//
// A non-zero exit yields a *ProcessError wrapping ErrExternalProcess; a
// deadline yields one that also wraps ErrProcessTimeout.
func (s *Sandbox) Exec(ctx context.Context, timeout time.Duration, name string, args ...string) (*ExecResult, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	command := strings.TrimSpace(name + " " + strings.Join(args, " "))

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = s.root
	cmd.Env = filterEnvironment(os.Environ())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	log := s.logger.With(zap.String("command", command), zap.Int64("duration_ms", result.DurationMs))

	if err == nil {
		log.Debug("process completed")
		return result, nil
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.TimedOut = true
		result.ExitCode = -1
		log.Warn("process timed out", zap.Duration("timeout", timeout))
		return result, &ProcessError{Command: command, ExitCode: -1, Stderr: result.Stderr, Err: ErrProcessTimeout}
	case ctx.Err() != nil:
		result.ExitCode = -1
		return result, &ProcessError{Command: command, ExitCode: -1, Stderr: result.Stderr, Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		log.Warn("process failed", zap.Int("exit_code", result.ExitCode))
		return result, &ProcessError{Command: command, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}

	result.ExitCode = -1
	return result, &ProcessError{Command: command, ExitCode: -1, Err: err}
}
