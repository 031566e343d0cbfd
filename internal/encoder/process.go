package encoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"go2tv.app/screencast/internal/domain"
)

const killWait = 5 * time.Second

// Launcher starts encoder processes.
type Launcher struct {
	logger  *zap.Logger
	command func(name string, args ...string) *exec.Cmd
}

func NewLauncher(logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		logger:  logger,
		command: exec.Command,
	}
}

// Process is a running encoder. It is not tied to the context passed to
// Start: callers decide when to Kill so remote playback can be stopped first.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	killOnce sync.Once
	killErr  error
}

// Start launches the encoder described by spec.
func (l *Launcher) Start(ctx context.Context, spec Spec) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := LocateBinary(spec.Binary)
	if err != nil {
		return nil, err
	}

	args := Args(spec)
	cmd := l.command(path, args...)
	cmd.Dir = spec.Dir

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, domain.WrapError(domain.CodeEncoderLaunchFailed, "create encoder stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, domain.WrapError(domain.CodeEncoderLaunchFailed, "start encoder", err)
	}

	l.logger.Info("encoder_started",
		zap.String("binary", path),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("dir", spec.Dir),
		zap.Strings("args", args),
	)

	p := &Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		l.forwardStderr(stderr)
		p.err = cmd.Wait()
		l.logger.Info("encoder_exited",
			zap.Int("pid", cmd.Process.Pid),
			zap.NamedError("exit", p.err),
		)
		close(p.done)
	}()
	return p, nil
}

func (l *Launcher) forwardStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.logger.Debug("encoder_stderr", zap.String("line", line))
	}
	if err := scanner.Err(); err != nil {
		l.logger.Debug("encoder_stderr_closed", zap.Error(err))
	}
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Kill terminates the process and waits briefly for it to be reaped.
// Killing an exited process is not an error.
func (p *Process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.killOnce.Do(func() {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.killErr = fmt.Errorf("kill encoder: %w", err)
			return
		}
		select {
		case <-p.done:
		case <-time.After(killWait):
			p.killErr = fmt.Errorf("encoder pid %d did not exit within %s", p.PID(), killWait)
		}
	})
	return p.killErr
}

// ListSources asks ffmpeg for the capture devices of one input format.
// ffmpeg prints the listing on stderr and exits non-zero, so output is
// returned whenever there is any.
func (l *Launcher) ListSources(ctx context.Context, binary, format string) (string, error) {
	path, err := LocateBinary(binary)
	if err != nil {
		return "", err
	}

	var args []string
	switch format {
	case "dshow", "avfoundation":
		args = []string{"-hide_banner", "-list_devices", "true", "-f", format, "-i", "dummy"}
	default:
		args = []string{"-hide_banner", "-sources", format}
	}

	cmd := l.command(path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return "", domain.WrapError(domain.CodeEncoderLaunchFailed, "start encoder", err)
	}
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return "", ctx.Err()
	case runErr := <-done:
		text := strings.TrimSpace(out.String())
		if text == "" && runErr != nil {
			return "", fmt.Errorf("list %s sources: %w", format, runErr)
		}
		l.logger.Debug("encoder_sources_listed", zap.String("format", format), zap.NamedError("exit", runErr))
		return text, nil
	}
}
