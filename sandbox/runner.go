package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultMaxOutput = 64 * 1024
	DefaultPython    = "python3"
)

var ErrTimeout = errors.New("command timed out")

// Result is the outcome of a finished command. A non-zero exit code is not an error.
type Result struct {
	Output    string        `json:"output"`
	ExitCode  int           `json:"exit_code"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Runner executes shell commands and Python snippets with the workspace root as working directory.
type Runner struct {
	workspace *Workspace
	timeout   time.Duration
	maxOutput int
	python    string
	logger    *slog.Logger
}

type RunnerOption func(*Runner)

func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMaxOutput(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

func WithPython(path string) RunnerOption {
	return func(r *Runner) {
		if path != "" {
			r.python = path
		}
	}
}

func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

func NewRunner(ws *Workspace, opts ...RunnerOption) *Runner {
	r := &Runner{
		workspace: ws,
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
		python:    DefaultPython,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Workspace() *Workspace {
	return r.workspace
}

// Run executes command with sh -c.
func (r *Runner) Run(ctx context.Context, command string) (*Result, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("command is required")
	}
	return r.exec(ctx, "", "sh", "-c", command)
}

// RunPython feeds code to the Python interpreter on stdin.
func (r *Runner) RunPython(ctx context.Context, code string) (*Result, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("code is required")
	}
	return r.exec(ctx, code, r.python, "-")
}

func (r *Runner) exec(ctx context.Context, stdin string, name string, args ...string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out := &cappedBuffer{limit: r.maxOutput}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.workspace.Root()
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Output:    out.String(),
		Truncated: out.truncated,
		Duration:  time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		r.logger.Warn("sandbox command timed out", "command", name, "timeout", r.timeout)
		return result, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case err != nil:
		return nil, err
	}
	r.logger.Debug("sandbox command finished", "command", name, "exitCode", result.ExitCode, "duration", result.Duration)
	return result, nil
}

// cappedBuffer keeps the first limit bytes and drops the rest.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
