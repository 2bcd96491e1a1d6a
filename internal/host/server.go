// Package host runs the game server core as a child process and gives
// plugins a console to talk to it.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Hook runs before the server core starts. A hook error aborts startup.
type Hook func(ctx context.Context) error

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("server core already started")

	// ErrNotRunning is returned for commands sent after the core exited.
	ErrNotRunning = errors.New("server core is not running")
)

// Options configures a Server.
type Options struct {
	// Executable is the server core binary; Args its command line.
	Executable string
	Args       []string
	Dir        string

	// Input is forwarded line by line to the core's console. Usually os.Stdin.
	Input io.Reader

	// Output receives the core's stdout and stderr. Defaults to a
	// ConsoleOutput on os.Stdout.
	Output OutputAdapter

	// StopTimeout bounds how long Stop waits after asking the core to exit.
	StopTimeout time.Duration

	Logger *slog.Logger
}

// DefaultStopTimeout is used when Options.StopTimeout is zero.
const DefaultStopTimeout = 10 * time.Second

// Server owns the server core process.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	hooks   []Hook
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending []string
	started bool
	exited  bool

	done    chan struct{}
	waitErr error
	pumps   sync.WaitGroup
}

// New creates a server. Nothing runs until Start.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Output == nil {
		opts.Output = NewConsoleOutput(os.Stdout, opts.Logger)
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}
}

// BeforeInitialize registers a hook to run, in registration order, before
// the server core starts.
func (s *Server) BeforeInitialize(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Start runs the hooks and launches the server core.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		if err := h(ctx); err != nil {
			s.markExited(nil)
			return fmt.Errorf("startup aborted: %w", err)
		}
	}

	cmd := exec.Command(s.opts.Executable, s.opts.Args...)
	cmd.Dir = s.opts.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.markExited(nil)
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.markExited(nil)
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.markExited(nil)
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.markExited(nil)
		return fmt.Errorf("failed to start server core: %w", err)
	}
	s.logger.Info("Server core started", "pid", cmd.Process.Pid, "path", s.opts.Executable)

	s.pumps.Add(2)
	go s.pump(stdout, StreamStdout)
	go s.pump(stderr, StreamStderr)

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	pending := s.pending
	s.pending = nil
	for _, line := range pending {
		if _, err := io.WriteString(stdin, line+"\n"); err != nil {
			s.logger.Warn("Queued console command dropped", "command", line, "error", err)
		}
	}
	s.mu.Unlock()

	go s.wait(cmd)
	if s.opts.Input != nil {
		go s.forward(ctx, s.opts.Input)
	}
	return nil
}

// Command writes a console line to the core. Lines sent before the core is
// running are queued and delivered once it starts.
func (s *Server) Command(_ context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exited {
		return ErrNotRunning
	}
	if s.stdin == nil {
		s.pending = append(s.pending, line)
		return nil
	}
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write console command: %w", err)
	}
	return nil
}

// Done is closed once the core has exited or startup failed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the core exits and returns its exit error.
func (s *Server) Wait() error {
	<-s.done
	return s.waitErr
}

// ExitCode returns the core's exit code, or -1 if it has not exited.
func (s *Server) ExitCode() int {
	select {
	case <-s.done:
	default:
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.ProcessState == nil {
		return -1
	}
	return s.cmd.ProcessState.ExitCode()
}

// Stop asks the core to exit with the "exit" console command and kills it
// if it has not exited within the stop timeout or ctx is done first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if err := s.Command(ctx, "exit"); err != nil && !errors.Is(err, ErrNotRunning) {
		s.logger.Warn("Failed to send exit command", "error", err)
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.logger.Warn("Server core did not exit in time, killing it", "pid", cmd.Process.Pid)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill server core: %w", err)
	}
	<-s.done
	return nil
}

func (s *Server) wait(cmd *exec.Cmd) {
	s.pumps.Wait()
	err := cmd.Wait()
	s.logger.Info("Server core exited", "code", cmd.ProcessState.ExitCode())
	s.markExited(err)
}

func (s *Server) markExited(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exited {
		return
	}
	s.exited = true
	s.waitErr = err
	if s.stdin != nil {
		s.stdin.Close()
	}
	close(s.done)
}

func (s *Server) pump(r io.Reader, stream Stream) {
	defer s.pumps.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.opts.Output.Line(stream, scanner.Text())
	}
}

// forward copies console input to the core until input ends or the core
// exits.
func (s *Server) forward(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := s.Command(ctx, scanner.Text()); err != nil {
			return
		}
	}
}
