package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caffeineduck/quickhub/protocol"
	"go.uber.org/zap"
)

var (
	ErrNotReady      = errors.New("sandbox not ready")
	ErrClosed        = errors.New("channel closed")
	ErrIsolateExited = errors.New("sandbox exited")
)

// InitializingNotice is reported once per submission that has to wait for
// the isolate.
const InitializingNotice = "[sandbox] initializing — try again in a moment"

// Isolate is an execution context the channel can drive. sandbox.Frame and
// sandbox.Process implement it.
type Isolate interface {
	Start() error
	Post(msg protocol.HostMessage) error
	Messages() <-chan protocol.ContextMessage
	Close() error
}

// Factory creates a fresh isolate.
type Factory func() (Isolate, error)

type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type outcome struct {
	res protocol.Result
	err error
}

type Channel struct {
	factory Factory
	cfg     config

	mu      sync.Mutex
	state   State
	iso     Isolate
	done    chan struct{}
	waiters map[string]chan outcome
}

// New builds a channel around factory. No isolate exists until Initialize
// or the first Execute.
func New(factory Factory, opts ...Option) *Channel {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Channel{
		factory: factory,
		cfg:     cfg,
		waiters: make(map[string]chan outcome),
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize creates and starts the isolate if there is none. It is safe to
// call repeatedly; at most one isolate exists at a time.
func (c *Channel) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Closed:
		return ErrClosed
	case Initializing, Ready:
		return nil
	}

	iso, err := c.factory()
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	if err := iso.Start(); err != nil {
		iso.Close()
		return fmt.Errorf("start sandbox: %w", err)
	}

	c.iso = iso
	c.state = Initializing
	c.done = make(chan struct{})
	go c.listen(iso, c.done)

	c.cfg.logger.Debug("sandbox initializing")
	return nil
}

// Execute submits code and returns its correlation id without waiting for
// the result. The result reaches the renderer like every other event.
func (c *Channel) Execute(ctx context.Context, code string) (string, error) {
	id, _, err := c.submit(ctx, code, false)
	return id, err
}

// Run submits code and waits for its result.
func (c *Channel) Run(ctx context.Context, code string) (protocol.Result, error) {
	id, wait, err := c.submit(ctx, code, true)
	if err != nil {
		return protocol.Result{}, err
	}

	select {
	case out := <-wait:
		return out.res, out.err
	case <-ctx.Done():
		c.dropWaiter(id)
		return protocol.Result{}, ctx.Err()
	}
}

func (c *Channel) submit(ctx context.Context, code string, wait bool) (string, chan outcome, error) {
	if err := c.Initialize(); err != nil {
		return "", nil, err
	}
	if err := c.awaitReady(ctx); err != nil {
		return "", nil, err
	}

	c.mu.Lock()
	if c.state != Ready {
		state := c.state
		c.mu.Unlock()
		if state == Closed {
			return "", nil, ErrClosed
		}
		return "", nil, ErrNotReady
	}
	id := c.cfg.newID()
	var ch chan outcome
	if wait {
		// Registered before posting so a fast result is never missed.
		ch = make(chan outcome, 1)
		c.waiters[id] = ch
	}
	iso := c.iso
	c.mu.Unlock()

	if err := iso.Post(protocol.RunCode(id, code)); err != nil {
		c.dropWaiter(id)
		return "", nil, fmt.Errorf("post request: %w", err)
	}
	c.cfg.logger.Debug("request posted", zap.String("id", id))
	return id, ch, nil
}

func (c *Channel) awaitReady(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		switch c.State() {
		case Ready:
			return nil
		case Closed:
			return ErrClosed
		case Uninitialized:
			// The isolate exited while we were waiting.
			if err := c.Initialize(); err != nil {
				return err
			}
		}

		if attempt >= c.cfg.maxRetries {
			return ErrNotReady
		}
		if attempt == 0 {
			c.cfg.renderer.Notice(InitializingNotice)
		}
		c.cfg.metrics.Retry()

		t := time.NewTimer(c.cfg.retryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Channel) listen(iso Isolate, done chan struct{}) {
	defer close(done)

	for msg := range iso.Messages() {
		ev, err := protocol.Decode(msg)
		if err != nil {
			c.cfg.logger.Debug("dropping message", zap.String("type", string(msg.Type)), zap.Error(err))
			continue
		}
		c.handle(ev)
	}
	c.exited(iso)
}

func (c *Channel) handle(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.Ready:
		c.mu.Lock()
		if c.state == Initializing {
			c.state = Ready
		}
		c.mu.Unlock()
		c.cfg.logger.Debug("sandbox ready")
		c.cfg.renderer.Render(ev)
	case protocol.LogMessage:
		c.cfg.metrics.LogMessage(ev.Level)
		c.cfg.renderer.Render(ev)
	case protocol.Result:
		c.cfg.metrics.ExecutionFinished(ev.OK)
		c.cfg.renderer.Render(ev)
		c.complete(ev)
	default:
		c.cfg.logger.Debug("dropping event", zap.Any("event", ev))
	}
}

func (c *Channel) complete(res protocol.Result) {
	c.mu.Lock()
	ch, ok := c.waiters[res.ID]
	delete(c.waiters, res.ID)
	c.mu.Unlock()

	if ok {
		ch <- outcome{res: res}
	}
}

func (c *Channel) dropWaiter(id string) {
	c.mu.Lock()
	delete(c.waiters, id)
	c.mu.Unlock()
}

// failWaiters must be called with c.mu held.
func (c *Channel) failWaiters(err error) {
	for id, ch := range c.waiters {
		ch <- outcome{err: err}
		delete(c.waiters, id)
	}
}

// exited handles an isolate whose stream ended without Close. The channel
// falls back to Uninitialized so the next submission starts a new one.
func (c *Channel) exited(iso Isolate) {
	c.mu.Lock()
	if c.iso != iso || c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Uninitialized
	c.iso = nil
	c.failWaiters(ErrIsolateExited)
	c.mu.Unlock()

	c.cfg.logger.Warn("sandbox exited unexpectedly")
	iso.Close()
}

// Close tears down the isolate and fails pending Run calls with ErrClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Closed
	iso, done := c.iso, c.done
	c.iso = nil
	c.failWaiters(ErrClosed)
	c.mu.Unlock()

	if iso == nil {
		return nil
	}
	err := iso.Close()
	<-done
	return err
}
