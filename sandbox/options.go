package sandbox

import (
	"io"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Option configures a Frame.
type Option func(*config)

type config struct {
	logger       *zap.Logger
	mirror       io.Writer     // Native console; nil discards
	readyDelay   time.Duration // Extra bootstrap latency before ready
	buffer       int           // Outbound queue capacity
	maxCallStack int
}

func defaultConfig() config {
	return config{
		logger:       zap.NewNop(),
		buffer:       64,
		maxCallStack: 1024,
	}
}

// WithLogger sets the logger used for context diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMirror also writes intercepted console lines to w, in addition to
// forwarding them to the host.
func WithMirror(w io.Writer) Option {
	return func(c *config) {
		c.mirror = w
	}
}

// WithReadyDelay postpones the ready signal after the runtime is built.
func WithReadyDelay(d time.Duration) Option {
	return func(c *config) {
		c.readyDelay = d
	}
}

// WithBuffer sets the capacity of the outbound message queue. A full queue
// stalls the loop until the host reads.
func WithBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithMaxCallStackSize bounds recursion inside the context.
func WithMaxCallStackSize(n int) Option {
	return func(c *config) {
		c.maxCallStack = n
	}
}

// Flags registers the child-side limits on fs. The returned func yields the
// matching options once fs has been parsed.
func Flags(fs *pflag.FlagSet) func() []Option {
	cfg := defaultConfig()
	fs.IntVar(&cfg.maxCallStack, "max-call-stack", cfg.maxCallStack, "maximum JavaScript call depth")
	fs.IntVar(&cfg.buffer, "buffer", cfg.buffer, "outbound message queue capacity")
	return func() []Option {
		return []Option{WithMaxCallStackSize(cfg.maxCallStack), WithBuffer(cfg.buffer)}
	}
}

// limitArgs renders the limits as the flags read by Flags.
func limitArgs(maxCallStack, buffer int) []string {
	var args []string
	if maxCallStack > 0 {
		args = append(args, "--max-call-stack="+strconv.Itoa(maxCallStack))
	}
	if buffer > 0 {
		args = append(args, "--buffer="+strconv.Itoa(buffer))
	}
	return args
}
