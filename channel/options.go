package channel

import (
	"time"

	"github.com/caffeineduck/quickhub/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRetryInterval = 200 * time.Millisecond
	DefaultMaxRetries    = 50
)

// Renderer receives every inbound event and the channel's own status
// notices. Calls come from the listener goroutine, one at a time.
type Renderer interface {
	Render(ev protocol.Event)
	Notice(text string)
}

// Metrics records channel activity.
type Metrics interface {
	ExecutionFinished(ok bool)
	LogMessage(level protocol.Level)
	Retry()
}

type nopRenderer struct{}

func (nopRenderer) Render(protocol.Event) {}
func (nopRenderer) Notice(string)         {}

type nopMetrics struct{}

func (nopMetrics) ExecutionFinished(bool)    {}
func (nopMetrics) LogMessage(protocol.Level) {}
func (nopMetrics) Retry()                    {}

// Option configures a Channel.
type Option func(*config)

type config struct {
	retryInterval time.Duration
	maxRetries    int
	logger        *zap.Logger
	renderer      Renderer
	metrics       Metrics
	newID         func() string
}

func defaultConfig() config {
	return config{
		retryInterval: DefaultRetryInterval,
		maxRetries:    DefaultMaxRetries,
		logger:        zap.NewNop(),
		renderer:      nopRenderer{},
		metrics:       nopMetrics{},
		newID:         uuid.NewString,
	}
}

// WithRetryInterval sets how long a deferred submission waits before
// checking readiness again.
func WithRetryInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.retryInterval = d
		}
	}
}

// WithMaxRetries bounds how many times a submission is deferred before
// Execute gives up with ErrNotReady. Zero fails immediately when the isolate
// is not ready.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRenderer forwards events and status notices, typically to a
// console.Log.
func WithRenderer(r Renderer) Option {
	return func(c *config) {
		if r != nil {
			c.renderer = r
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithIDGenerator replaces the correlation id source (random UUIDs by
// default).
func WithIDGenerator(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.newID = fn
		}
	}
}
