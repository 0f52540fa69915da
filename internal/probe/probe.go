// Package probe runs the external ping executable and streams its output.
package probe

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pingmon/internal/stream"
	pkgerrors "pingmon/pkg/errors"
)

// AddressPlaceholder is replaced by the target address in Config.Args.
const AddressPlaceholder = "{address}"

// DefaultGracePeriod is how long a stopped probe may take to exit before it is killed.
const DefaultGracePeriod = 2 * time.Second

// Config describes the probe command.
type Config struct {
	Command     string
	Args        []string
	Env         []string // appended to the parent environment
	GracePeriod time.Duration
}

// DefaultConfig returns the platform ping invocation that runs until stopped.
func DefaultConfig() Config {
	cfg := Config{
		Command:     "ping",
		Args:        []string{AddressPlaceholder},
		GracePeriod: DefaultGracePeriod,
	}
	if runtime.GOOS == "windows" {
		cfg.Args = []string{"-t", AddressPlaceholder}
	}
	return cfg
}

// ValidateAddress rejects targets that would be read as flags or split into
// several arguments by the probe command.
func ValidateAddress(address string) error {
	if address == "" || strings.HasPrefix(address, "-") || strings.ContainsFunc(address, isSpace) {
		return fmt.Errorf("%w: %q", pkgerrors.ErrInvalidAddress, address)
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func (c Config) args(address string) []string {
	out := make([]string, len(c.Args))
	for i, a := range c.Args {
		out[i] = strings.ReplaceAll(a, AddressPlaceholder, address)
	}
	return out
}

// Session is one running probe process and its reader goroutine.
type Session struct {
	id        uint64
	target    string
	createdAt time.Time
	grace     time.Duration

	cmd     *exec.Cmd
	running atomic.Bool
	done    chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	killer   *time.Timer
}

func (s *Session) ID() uint64           { return s.id }
func (s *Session) Target() string       { return s.target }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Running reports whether the session still forwards output.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Done is closed once the reader has exited and the process was reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// stop clears the running flag and asks the process to exit. A process still
// alive after the grace period is killed.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		if s.cmd == nil || s.cmd.Process == nil {
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
		terminate(s.cmd.Process)

		s.mu.Lock()
		s.killer = time.AfterFunc(s.grace, func() {
			kill(s.cmd.Process)
		})
		s.mu.Unlock()
	})
}

func (s *Session) cancelKiller() {
	s.mu.Lock()
	if s.killer != nil {
		s.killer.Stop()
	}
	s.mu.Unlock()
}

// Prober owns at most one Session at a time.
type Prober struct {
	cfg    Config
	queue  *stream.Queue
	logger *zap.Logger

	mu      sync.Mutex
	current *Session
	nextID  atomic.Uint64
}

// New creates a Prober that pushes output into queue.
func New(cfg Config, queue *stream.Queue, logger *zap.Logger) *Prober {
	if cfg.Command == "" {
		def := DefaultConfig()
		cfg.Command = def.Command
		if len(cfg.Args) == 0 {
			cfg.Args = def.Args
		}
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{cfg: cfg, queue: queue, logger: logger}
}

// Start stops and joins any running session, then launches the probe against
// address. It returns the new session id. When the process cannot be started a
// single diagnostic line is queued under that id and a *LaunchError is returned.
func (p *Prober) Start(address string) (uint64, error) {
	if err := ValidateAddress(address); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if prev := p.current; prev != nil {
		prev.stop()
		<-prev.done
		p.current = nil
	}

	s := &Session{
		id:        p.nextID.Add(1),
		target:    address,
		createdAt: time.Now(),
		grace:     p.cfg.GracePeriod,
		done:      make(chan struct{}),
	}

	if err := p.launch(s); err != nil {
		launchErr := &pkgerrors.LaunchError{Address: address, Command: p.cfg.Command, Err: err}
		p.queue.Push(stream.Diagnostic(s.id, "probe failed: "+launchErr.Error()))
		close(s.done)
		p.logger.Warn("probe launch failed",
			zap.String("address", address),
			zap.String("command", p.cfg.Command),
			zap.Error(err))
		return s.id, launchErr
	}

	p.current = s
	p.logger.Info("probe started",
		zap.String("address", address),
		zap.Uint64("session", s.id),
		zap.Int("pid", s.cmd.Process.Pid))
	return s.id, nil
}

func (p *Prober) launch(s *Session) error {
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command(p.cfg.Command, p.cfg.args(s.target)...)
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), p.cfg.Env...)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	configure(cmd)

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return err
	}
	// The child holds its own copy of the write end.
	w.Close()

	s.cmd = cmd
	s.running.Store(true)
	go p.read(s, r)
	return nil
}

// read forwards output lines until the pipe closes or the session is stopped,
// then reaps the process and queues the ended marker.
func (p *Prober) read(s *Session, r *os.File) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if !s.running.Load() {
			break
		}
		line := strings.ToValidUTF8(strings.TrimRight(scanner.Text(), "\r"), "")
		p.queue.Push(stream.Line(s.id, line))
	}
	if err := scanner.Err(); err != nil && s.running.Load() {
		p.logger.Debug("probe output read failed", zap.Uint64("session", s.id), zap.Error(err))
	}

	// The process is not reaped yet, so signalling it here cannot hit a reused pid.
	s.stop()
	r.Close()
	err := s.cmd.Wait()
	s.cancelKiller()

	p.logger.Info("probe exited",
		zap.String("address", s.target),
		zap.Uint64("session", s.id),
		zap.NamedError("exit", err))
	p.queue.Push(stream.Item{Kind: stream.KindEnded, Session: s.id})
}

// Stop ends the current session. It never fails and may be called repeatedly.
func (p *Prober) Stop() {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

// Wait blocks until the current session's reader has exited.
func (p *Prober) Wait() {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s != nil {
		<-s.done
	}
}

// Active reports whether a session is forwarding output.
func (p *Prober) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.Running()
}

// Target returns the address of the current or most recent session.
func (p *Prober) Target() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.target
}

// Session returns the current session, or nil.
func (p *Prober) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
