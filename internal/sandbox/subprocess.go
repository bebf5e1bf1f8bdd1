package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// interpreters maps supported languages to interpreter argv and the source
// file name the interpreter expects.
var interpreters = map[string]struct {
	argv     []string
	filename string
}{
	"python":     {argv: []string{"python3", "-I"}, filename: "main.py"},
	"javascript": {argv: []string{"node", "--no-warnings"}, filename: "main.js"},
}

// SubprocessRunner executes candidate code in a short-lived subprocess with
// an empty environment, a scratch working directory, a wall-clock timeout
// and address-space/output caps. It is deliberately conservative: anything
// that escapes the limits is killed, never waited on indefinitely.
type SubprocessRunner struct {
	timeout   time.Duration
	memoryMB  int
	outputCap int64
	log       zerolog.Logger
}

// NewSubprocessRunner creates a SubprocessRunner.
func NewSubprocessRunner(timeout time.Duration, memoryMB int, outputCap int64, log zerolog.Logger) *SubprocessRunner {
	return &SubprocessRunner{
		timeout:   timeout,
		memoryMB:  memoryMB,
		outputCap: outputCap,
		log:       log.With().Str("component", "sandbox").Logger(),
	}
}

// Run writes the code to a scratch dir and executes it with stdin attached.
func (r *SubprocessRunner) Run(ctx context.Context, spec RunSpec) (Result, error) {
	interp, ok := interpreters[strings.ToLower(spec.Language)]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, spec.Language)
	}

	dir, err := os.MkdirTemp("", "assess-sandbox-*")
	if err != nil {
		return Result{}, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, interp.filename)
	if err := os.WriteFile(srcPath, []byte(spec.Code), 0o600); err != nil {
		return Result{}, fmt.Errorf("write source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Address-space cap through the shell so the limit applies to the
	// interpreter, not to us.
	shellCmd := strings.Join(append(append([]string{}, interp.argv...), interp.filename), " ")
	if r.memoryMB > 0 {
		shellCmd = fmt.Sprintf("ulimit -v %d; exec %s", r.memoryMB*1024, shellCmd)
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", shellCmd)
	cmd.Dir = dir
	cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin"}
	cmd.Stdin = strings.NewReader(spec.Stdin)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// On deadline, kill the whole process group: a forked descendant inherits
	// the group and the stdout pipe, and would otherwise keep Wait blocked
	// long after the direct child is dead.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// If anything escapes the group (setsid), force-close the pipes after a
	// grace period instead of waiting on the orphan.
	cmd.WaitDelay = time.Second

	stdout := &cappedBuffer{cap: r.outputCap}
	stderr := &cappedBuffer{cap: r.outputCap}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: runCtx.Err() == context.DeadlineExceeded,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil && !res.TimedOut && !errors.Is(runErr, exec.ErrWaitDelay) {
		if _, isExit := runErr.(*exec.ExitError); !isExit {
			// Interpreter missing, fork failure, etc. — an infrastructure
			// fault, not a property of the submission.
			return res, fmt.Errorf("run code: %w", runErr)
		}
	}
	return res, nil
}

// cappedBuffer accumulates writes up to cap bytes and silently discards the
// rest, so a print-flooding submission cannot exhaust memory.
type cappedBuffer struct {
	buf bytes.Buffer
	cap int64
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.cap - int64(b.buf.Len())
	if remaining > 0 {
		if int64(len(p)) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	// Report full consumption so the child never blocks on a full pipe.
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }
