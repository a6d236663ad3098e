// Package claude runs the Claude Code CLI as a subprocess and turns its
// stream-json output into a single response. It owns the full lifecycle:
// argument construction, inactivity watchdog, process-group teardown, and
// the one-shot fresh retry when a resumed session fails.
package claude

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
)

// ErrInactivityTimeout is returned when the agent produces no parseable
// events for the configured inactivity window and is killed.
var ErrInactivityTimeout = errors.New("agent inactive past deadline")

// Request describes a single agent invocation.
type Request struct {
	Prompt string
	// ResumeToken, when set, continues a previous agent session.
	ResumeToken string
}

// Result is the outcome of a completed invocation.
type Result struct {
	Text      string
	SessionID string
	// Retried is true when the first attempt failed and the response came
	// from a fresh second attempt.
	Retried bool
	// TimedOut is true when the process was killed by the inactivity
	// watchdog. Text and SessionID hold whatever arrived before the kill.
	TimedOut bool
}

// Invoker runs agent invocations.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// Config holds CLI invoker settings.
type Config struct {
	// Binary is the agent executable, resolved via PATH if not absolute.
	Binary string
	// ExtraArgs are appended after the standard argument set.
	ExtraArgs []string
	// WorkDir is the working directory for the subprocess.
	WorkDir string
	// InactivityTimeout kills the process when no parsed event arrives
	// within the window. Raw bytes that do not decode to an event do not
	// reset the clock.
	InactivityTimeout time.Duration
	// MaxOutputBytes caps how much stdout is accumulated. Past the cap the
	// stream is drained and discarded while the process runs to completion.
	// Zero disables the cap.
	MaxOutputBytes int64
}

// CLI invokes the Claude Code binary in streaming print mode.
type CLI struct {
	cfg Config
	log *logger.Logger
}

// NewCLI creates a CLI invoker.
func NewCLI(cfg Config, log *logger.Logger) *CLI {
	return &CLI{cfg: cfg, log: log}
}

// Invoke runs the agent once, retrying a single time with a fresh session
// when a resumed invocation exits non-zero. A timeout is terminal and never
// retried; the partial result captured before the kill is returned alongside
// ErrInactivityTimeout.
func (c *CLI) Invoke(ctx context.Context, req Request) (*Result, error) {
	res, err := c.runOnce(ctx, req)
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if req.ResumeToken != "" && errors.As(err, &exitErr) {
		c.log.Warn("resumed invocation failed, retrying with fresh session",
			logger.Field{Key: "exit_code", Value: exitErr.ExitCode()},
			logger.Field{Key: "session_id", Value: req.ResumeToken},
		)
		res, err = c.runOnce(ctx, Request{Prompt: req.Prompt})
		if err != nil {
			return nil, fmt.Errorf("fresh retry failed: %w", err)
		}
		res.Retried = true
		return res, nil
	}

	return res, err
}

func (c *CLI) runOnce(ctx context.Context, req Request) (*Result, error) {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if req.ResumeToken != "" {
		args = append(args, "--resume", req.ResumeToken)
	}
	args = append(args, c.cfg.ExtraArgs...)

	cmd := exec.Command(c.cfg.Binary, args...)
	cmd.Dir = c.cfg.WorkDir
	// Own process group so the kill reaches descendants the agent spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.cfg.Binary, err)
	}

	go c.drainStderr(stderr)

	parser := NewStreamParser(c.cfg.MaxOutputBytes)
	activity := make(chan struct{}, 1)
	readerDone := make(chan struct{})

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				if events := parser.Feed(buf[:n]); len(events) > 0 {
					select {
					case activity <- struct{}{}:
					default:
					}
				}
			}
			if readErr != nil {
				parser.Close()
				close(readerDone)
				return
			}
		}
	}()

	timeout := c.cfg.InactivityTimeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	watchdog := time.NewTimer(timeout)
	defer watchdog.Stop()

	var timedOut bool

loop:
	for {
		select {
		case <-activity:
			if !watchdog.Stop() {
				<-watchdog.C
			}
			watchdog.Reset(timeout)
		case <-watchdog.C:
			timedOut = true
			c.killGroup(cmd)
			<-readerDone
			break loop
		case <-ctx.Done():
			c.killGroup(cmd)
			<-readerDone
			cmd.Wait()
			return nil, ctx.Err()
		case <-readerDone:
			break loop
		}
	}

	waitErr := cmd.Wait()

	if parser.Capped() {
		c.log.Warn("agent output ceiling reached, remainder discarded",
			logger.Field{Key: "bytes_read", Value: parser.BytesRead()},
			logger.Field{Key: "limit", Value: c.cfg.MaxOutputBytes},
		)
	}

	res := &Result{
		Text:      parser.ResultText(),
		SessionID: parser.SessionID(),
		TimedOut:  timedOut,
	}

	if timedOut {
		c.log.Warn("agent killed after inactivity timeout",
			logger.Field{Key: "timeout", Value: timeout.String()},
			logger.Field{Key: "bytes_read", Value: parser.BytesRead()},
		)
		return res, ErrInactivityTimeout
	}

	if waitErr != nil {
		return nil, fmt.Errorf("agent exited: %w", waitErr)
	}

	return res, nil
}

// killGroup sends SIGKILL to the subprocess and every process in its group.
func (c *CLI) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Group kill can fail if the leader already exited; fall back to
		// the single process.
		cmd.Process.Kill()
	}
}

func (c *CLI) drainStderr(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.log.Debug("agent stderr", logger.Field{Key: "output", Value: string(buf[:n])})
		}
		if err != nil {
			return
		}
	}
}
