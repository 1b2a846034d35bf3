package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/caffeineduck/quickhub/protocol"
	"go.uber.org/zap"
)

// Process runs the isolated context in a child process. The child is the
// current executable started with the hidden sandbox subcommand and an empty
// environment; it speaks newline-delimited JSON on stdin and stdout.
type Process struct {
	path   string
	args   []string
	logger *zap.Logger
	stderr io.Writer

	maxCallStack int
	buffer       int

	out chan protocol.ContextMessage

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *protocol.Encoder
	cancel  context.CancelFunc
	started bool
	closed  bool
	waited  chan struct{}
}

// ProcessOption configures a Process.
type ProcessOption func(*Process)

// WithCommand overrides the executable and arguments of the child.
func WithCommand(path string, args ...string) ProcessOption {
	return func(p *Process) {
		p.path = path
		p.args = args
	}
}

// WithLimits passes the call stack bound and queue capacity to the child,
// and sizes the host-side queue to match. Zero keeps the child's default.
func WithLimits(maxCallStack, buffer int) ProcessOption {
	return func(p *Process) {
		p.maxCallStack = maxCallStack
		p.buffer = buffer
	}
}

// WithProcessLogger sets the logger for process lifecycle events.
func WithProcessLogger(l *zap.Logger) ProcessOption {
	return func(p *Process) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithStderr forwards the child's stderr. By default it is discarded.
func WithStderr(w io.Writer) ProcessOption {
	return func(p *Process) {
		p.stderr = w
	}
}

// NewProcess prepares a child-process context. Nothing is spawned until
// Start.
func NewProcess(opts ...ProcessOption) *Process {
	p := &Process{
		args:   []string{"sandbox"},
		logger: zap.NewNop(),
		waited: make(chan struct{}),
	}
	if exe, err := os.Executable(); err == nil {
		p.path = exe
	}
	for _, opt := range opts {
		opt(p)
	}
	size := p.buffer
	if size <= 0 {
		size = defaultConfig().buffer
	}
	p.out = make(chan protocol.ContextMessage, size)
	return p
}

// Start spawns the child. Its ready message arrives on Messages.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.started {
		return nil
	}
	if p.path == "" {
		return errors.New("sandbox executable unknown")
	}

	ctx, cancel := context.WithCancel(context.Background())
	args := append(append([]string(nil), p.args...), limitArgs(p.maxCallStack, p.buffer)...)
	cmd := exec.CommandContext(ctx, p.path, args...)
	cmd.Env = []string{}
	cmd.Stderr = p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start sandbox process: %w", err)
	}

	p.cmd, p.stdin, p.cancel = cmd, stdin, cancel
	p.enc = protocol.NewEncoder(stdin)
	p.started = true
	p.logger.Debug("sandbox process started", zap.Int("pid", cmd.Process.Pid))

	go p.read(stdout)
	return nil
}

func (p *Process) read(stdout io.Reader) {
	defer close(p.out)
	defer close(p.waited)

	dec := protocol.NewDecoder(stdout)
	for {
		var msg protocol.ContextMessage
		err := dec.Decode(&msg)
		if errors.Is(err, protocol.ErrBadPayload) {
			p.logger.Warn("dropping malformed message from sandbox", zap.Error(err))
			continue
		}
		if err != nil {
			if err != io.EOF {
				p.logger.Warn("sandbox stream failed", zap.Error(err))
			}
			break
		}
		p.out <- msg
	}

	if err := p.cmd.Wait(); err != nil {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if !closed {
			p.logger.Warn("sandbox process exited", zap.Error(err))
		}
	}
}

// Post writes an execution request to the child's stdin.
func (p *Process) Post(msg protocol.HostMessage) error {
	p.mu.Lock()
	enc, started, closed := p.enc, p.started, p.closed
	p.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !started {
		return ErrNotStarted
	}
	return enc.Encode(msg)
}

// Messages returns the child's outbound stream. It closes when the child
// exits.
func (p *Process) Messages() <-chan protocol.ContextMessage {
	return p.out
}

// Close closes stdin, kills the child and waits for it.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	if !started {
		close(p.out)
		return nil
	}

	p.stdin.Close()
	p.cancel()
	// Unread messages would block the reader forever.
	for range p.out {
	}
	<-p.waited
	return nil
}
