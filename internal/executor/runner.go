// Package executor runs module scripts as child processes under a hard
// wall-clock timeout.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/scriptdeck/internal"
)

var (
	ErrUnsafeName = errors.New("executor: unsafe executable name")
	ErrNotFound   = errors.New("executor: executable not found")
	ErrTimeout    = errors.New("executor: execution timed out")
	ErrFailed     = errors.New("executor: execution failed")
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// waitDelay bounds how long output pipes are drained after the script has
// exited, in case a descendant that escaped the process group still holds
// them open.
const waitDelay = 2 * time.Second

type Output struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Elapsed   time.Duration
	Truncated bool
}

// RunError is returned for every failed run. Kind is one of the package
// sentinels, so errors.Is(err, ErrTimeout) works.
type RunError struct {
	Kind     error
	Err      error
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *RunError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

type Runner struct {
	scriptsDir     string
	maxOutputBytes int
	inheritEnv     []string
	logger         *slog.Logger
}

func NewRunner(cfg internal.ExecutionConfig, logger *slog.Logger) (*Runner, error) {
	dir, err := filepath.Abs(cfg.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve scripts dir: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scripts dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scripts dir %s is not a directory", dir)
	}

	return &Runner{
		scriptsDir:     dir,
		maxOutputBytes: cfg.MaxOutputBytes,
		inheritEnv:     cfg.InheritEnv,
		logger:         logger,
	}, nil
}

// ResolvePath maps an executable name onto a regular file inside the scripts
// directory. Names that contain anything outside [A-Za-z0-9_.-] are refused
// rather than cleaned.
func (r *Runner) ResolvePath(name string) (string, error) {
	clean := unsafeChars.ReplaceAllString(name, "")
	if clean != name || clean == "" || clean == "." || clean == ".." {
		return "", ErrUnsafeName
	}

	path := filepath.Join(r.scriptsDir, clean)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// Run spawns the named script directly, without a shell. The timeout is the
// only thing that stops it; cancellation of ctx is ignored so an abandoned
// request does not leave a half-finished side effect behind.
func (r *Runner) Run(ctx context.Context, name string, args []string, timeout time.Duration, env map[string]string) (*Output, error) {
	start := time.Now()

	path, err := r.ResolvePath(name)
	if err != nil {
		r.logger.Warn("refusing to run executable", "executable", name, "error", err)
		return nil, &RunError{Kind: err, ExitCode: -1, Elapsed: time.Since(start)}
	}
	if timeout <= 0 {
		return nil, &RunError{Kind: ErrFailed, Err: errors.New("timeout must be positive"), ExitCode: -1, Elapsed: time.Since(start)}
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: r.maxOutputBytes}
	stderr := &cappedBuffer{limit: r.maxOutputBytes}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &RunError{Kind: ErrFailed, Err: err, ExitCode: -1, Elapsed: time.Since(start)}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, &RunError{Kind: ErrFailed, Err: err, ExitCode: -1, Elapsed: time.Since(start)}
	}

	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Dir = r.scriptsDir
	cmd.Env = r.environ(env)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	r.logger.Debug("spawning script", "path", path, "args", len(args), "timeout", timeout)

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, &RunError{Kind: ErrFailed, Err: err, ExitCode: -1, Elapsed: time.Since(start)}
	}
	closeAll(stdoutW, stderrW)

	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdout, stdoutR)
	go drain(&wg, stderr, stderrR)

	runErr := cmd.Wait()
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	// Anything the script left running in its group dies with it.
	_ = killGroup(cmd)
	if !waitDrained(&wg, waitDelay) {
		r.logger.Warn("output still held open after script exit", "path", path)
		closeAll(stdoutR, stderrR)
		wg.Wait()
	}
	closeAll(stdoutR, stderrR)
	elapsed := time.Since(start)

	out := &Output{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Elapsed:   elapsed,
		Truncated: stdout.truncated || stderr.truncated,
	}

	if timedOut {
		return nil, &RunError{Kind: ErrTimeout, Stderr: out.Stderr, ExitCode: -1, Elapsed: elapsed}
	}

	if errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 0 {
		runErr = nil
	}

	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &RunError{Kind: ErrFailed, Err: runErr, Stderr: out.Stderr, ExitCode: exitCode, Elapsed: elapsed}
	}

	return out, nil
}

func drain(wg *sync.WaitGroup, dst *cappedBuffer, src io.Reader) {
	defer wg.Done()
	_, _ = io.Copy(dst, src)
}

func waitDrained(wg *sync.WaitGroup, limit time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func (r *Runner) environ(extra map[string]string) []string {
	env := make([]string, 0, len(r.inheritEnv)+len(extra))
	for _, key := range r.inheritEnv {
		if _, override := extra[key]; override {
			continue
		}
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			continue
		}
		env = append(env, k+"="+strings.ReplaceAll(extra[k], "\x00", ""))
	}
	return env
}

// cappedBuffer keeps at most limit bytes and silently discards the rest.
// A zero limit keeps everything.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
