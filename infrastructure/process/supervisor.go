package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

// Defaults.
const (
	DefaultReadinessTimeout = 15 * time.Second
	DefaultShutdownGrace    = 5 * time.Second
)

// Supervisor errors.
var (
	// ErrExitedBeforeReady indicates the child exited without announcing readiness.
	ErrExitedBeforeReady = errors.New("server exited before becoming ready")

	// ErrReadinessTimeout indicates the child did not become ready in time.
	ErrReadinessTimeout = errors.New("server readiness timed out")

	// ErrEmptyCommand indicates no command was configured.
	ErrEmptyCommand = errors.New("empty server command")
)

// Config configures a supervised child process.
type Config struct {
	// Command is the program and its arguments.
	Command []string

	// Env is appended to the parent's environment.
	Env []string

	// ReadinessTimeout bounds the wait for the readiness line and TCP check.
	ReadinessTimeout time.Duration

	// ShutdownGrace is how long Stop waits after SIGTERM before killing.
	ShutdownGrace time.Duration

	// Stderr receives the child's stderr. Nil means the parent's stderr.
	Stderr io.Writer
}

// DefaultCommand re-invokes the running executable with the serve subcommand.
func DefaultCommand() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, &crm.ProcessLaunchError{Command: "self", Err: err}
	}
	return []string{exe, "serve"}, nil
}

// Supervisor owns one running child process.
type Supervisor struct {
	cmd   *exec.Cmd
	addr  string
	grace time.Duration

	done    chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// Start launches the child and blocks until it is ready to accept connections.
// Any failure is returned as *crm.ProcessLaunchError and leaves no child running.
func Start(ctx context.Context, cfg Config) (*Supervisor, error) {
	if len(cfg.Command) == 0 {
		return nil, &crm.ProcessLaunchError{Err: ErrEmptyCommand}
	}
	display := strings.Join(cfg.Command, " ")
	launchErr := func(err error) error {
		return &crm.ProcessLaunchError{Command: display, Err: err}
	}

	path, err := exec.LookPath(cfg.Command[0])
	if err != nil {
		return nil, launchErr(err)
	}

	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = DefaultReadinessTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}

	cmd := exec.Command(path, cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	isolate(cmd)
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, launchErr(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, launchErr(err)
	}

	logging.Info().
		Add(logging.Component("process")).
		Add(logging.Str("command", display)).
		Add(logging.Int("pid", cmd.Process.Pid)).
		Msg("server process started")

	s := &Supervisor{
		cmd:   cmd,
		grace: cfg.ShutdownGrace,
		done:  make(chan struct{}),
	}

	ready := make(chan string, 1)
	scanned := make(chan struct{})
	go s.scan(stdout, ready, scanned)
	go func() {
		// Wait must not run before stdout has been drained.
		<-scanned
		s.waitErr = cmd.Wait()
		close(s.done)
	}()

	timer := time.NewTimer(cfg.ReadinessTimeout)
	defer timer.Stop()

	select {
	case addr := <-ready:
		s.addr = addr
	case <-s.done:
		return nil, launchErr(s.exitCause())
	case <-timer.C:
		s.kill()
		return nil, launchErr(ErrReadinessTimeout)
	case <-ctx.Done():
		s.kill()
		return nil, launchErr(ctx.Err())
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ReadinessTimeout)
	defer cancel()
	if err := waitForListener(dialCtx, s.addr); err != nil {
		s.kill()
		return nil, launchErr(fmt.Errorf("dial %s: %w", s.addr, err))
	}

	logging.Info().
		Add(logging.Component("process")).
		Add(logging.Str("addr", s.addr)).
		Msg("server ready")

	return s, nil
}

func (s *Supervisor) scan(stdout io.Reader, ready chan<- string, scanned chan<- struct{}) {
	defer close(scanned)

	announced := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if !announced {
			if addr, ok := ParseReadyLine(line); ok {
				announced = true
				ready <- addr
				continue
			}
		}
		logging.Debug().
			Add(logging.Component("process")).
			Add(logging.Str("stdout", line)).
			Msg("server output")
	}
	_, _ = io.Copy(io.Discard, stdout)
}

func (s *Supervisor) exitCause() error {
	if s.waitErr != nil {
		return fmt.Errorf("%w: %v", ErrExitedBeforeReady, s.waitErr)
	}
	return ErrExitedBeforeReady
}

// waitForListener dials addr with exponential backoff until it answers or ctx ends.
func waitForListener(ctx context.Context, addr string) error {
	r := retry.New[net.Conn](retry.Config{
		MaxAttempts:   8,
		InitialDelay:  50 * time.Millisecond,
		BackoffPolicy: retry.BackoffExponential,
		Multiplier:    2.0,
	})

	var d net.Dialer
	conn, err := r.Do(ctx, func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", addr)
	})
	if err != nil {
		return err
	}
	return conn.Close()
}

// Addr returns the host:port the child announced.
func (s *Supervisor) Addr() string {
	return s.addr
}

// PID returns the child's process id.
func (s *Supervisor) PID() int {
	return s.cmd.Process.Pid
}

// Done is closed once the child has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Stop sends SIGTERM to the child's process group, waits for the grace period, and then kills the child.
// It is safe to call more than once.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() {
		select {
		case <-s.done:
			return
		default:
		}

		if err := terminate(s.cmd); err != nil {
			s.kill()
			return
		}

		timer := time.NewTimer(s.grace)
		defer timer.Stop()

		select {
		case <-s.done:
			logging.Info().
				Add(logging.Component("process")).
				Msg("server process stopped")
		case <-timer.C:
			logging.Warn().
				Add(logging.Component("process")).
				Add(logging.Duration(s.grace)).
				Msg("server ignored SIGTERM, killing")
			s.kill()
		}
	})
	return s.stopErr
}

func (s *Supervisor) kill() {
	if err := forceKill(s.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH) {
		s.stopErr = err
	}
	<-s.done
}
