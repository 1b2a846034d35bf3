package sandbox

import (
	"errors"
	"sync"

	"github.com/caffeineduck/quickhub/protocol"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("sandbox closed")
	ErrNotStarted = errors.New("sandbox not started")
)

// Frame is an in-process isolated context. The goja runtime is owned by an
// event loop; scripts, timer callbacks and emitted events all run as loop
// jobs.
type Frame struct {
	cfg  config
	loop *eventloop.EventLoop

	out  chan protocol.ContextMessage
	quit chan struct{}

	mu      sync.Mutex
	rt      *runtime
	started bool
	closed  bool
}

// NewFrame creates a context. Nothing runs until Start.
func NewFrame(opts ...Option) *Frame {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Frame{
		cfg:  cfg,
		loop: eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		out:  make(chan protocol.ContextMessage, cfg.buffer),
		quit: make(chan struct{}),
	}
}

// Start begins bootstrapping. The ready message arrives on Messages once the
// runtime is built. Calling Start again is a no-op.
func (f *Frame) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.started {
		return nil
	}
	f.started = true

	f.loop.Start()
	f.loop.RunOnLoop(f.setup)
	return nil
}

// setup is the first loop job.
func (f *Frame) setup(vm *goja.Runtime) {
	logger := f.cfg.logger
	rt, err := newRuntime(vm, f.loop, f.cfg, f.emit, f.quit)
	if err != nil {
		// Never becomes ready; the host's bounded retry surfaces this.
		logger.Error("sandbox bootstrap failed", zap.Error(err))
		return
	}

	f.mu.Lock()
	f.rt = rt
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}

	if f.cfg.readyDelay > 0 {
		f.loop.SetTimeout(func(*goja.Runtime) { f.ready() }, f.cfg.readyDelay)
		return
	}
	f.ready()
}

func (f *Frame) ready() {
	f.emit(protocol.Ready{})
	f.cfg.logger.Debug("sandbox ready")
}

// Post queues an execution request on the loop.
func (f *Frame) Post(msg protocol.HostMessage) error {
	f.mu.Lock()
	started, closed := f.started, f.closed
	f.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !started {
		return ErrNotStarted
	}
	if msg.Type != protocol.TypeRunCode {
		f.cfg.logger.Debug("ignoring message", zap.String("type", string(msg.Type)))
		return nil
	}

	queued := f.loop.RunOnLoop(func(*goja.Runtime) {
		f.mu.Lock()
		rt := f.rt
		f.mu.Unlock()
		if rt != nil {
			rt.execute(msg.ID, msg.Code)
		}
	})
	if !queued {
		return ErrClosed
	}
	return nil
}

// Messages returns the outbound stream. It is closed when the frame stops.
func (f *Frame) Messages() <-chan protocol.ContextMessage {
	return f.out
}

// Close interrupts any running script, terminates the loop and drops pending
// timers. It returns once the loop goroutine has exited.
func (f *Frame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	started := f.started
	rt := f.rt
	close(f.quit)
	f.mu.Unlock()

	if started {
		f.loop.StopNoWait()
		if rt != nil {
			rt.interrupt("sandbox closed")
		}
		f.loop.Terminate()
	}
	close(f.out)
	return nil
}

// emit runs on the loop goroutine.
func (f *Frame) emit(ev protocol.Event) {
	msg, err := protocol.Encode(ev)
	if err != nil {
		f.cfg.logger.Error("encode event", zap.Error(err))
		return
	}
	select {
	case f.out <- msg:
	case <-f.quit:
	}
}
