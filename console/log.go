// Package console keeps the scratch console's output: an ordered, clearable
// list of entries rendered from sandbox events, fanned out to live
// subscribers.
package console

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/quickhub/protocol"
)

// Kind classifies an entry for display.
type Kind string

const (
	KindInfo  Kind = "info"
	KindLog   Kind = "log"
	KindWarn  Kind = "warn"
	KindError Kind = "error"
)

type Entry struct {
	Kind Kind      `json:"kind"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

const (
	ReadyText   = "[sandbox] ready"
	ResultTag   = "[result] "
	ErrorTag    = "[error] "
	defaultSubs = 256
)

// Option configures a Log.
type Option func(*Log)

// WithCapacity keeps at most n entries, dropping the oldest. Zero means
// unbounded.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n >= 0 {
			l.capacity = n
		}
	}
}

// WithSubscriberBuffer sets how many entries a subscriber may lag behind
// before it is detached as lagged.
func WithSubscriberBuffer(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.subBuffer = n
		}
	}
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// Log is safe for concurrent use.
type Log struct {
	mu        sync.Mutex
	entries   []Entry
	capacity  int
	subBuffer int
	subs      map[int]*Subscription
	taps      map[int]func(Entry)
	nextID    int
	now       func() time.Time
}

func NewLog(opts ...Option) *Log {
	l := &Log{
		subBuffer: defaultSubs,
		subs:      make(map[int]*Subscription),
		taps:      make(map[int]func(Entry)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Render turns a sandbox event into an entry.
func (l *Log) Render(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.Ready:
		l.Note(KindInfo, ReadyText)
	case protocol.LogMessage:
		l.Note(kindOf(ev.Level), ev.Text)
	case protocol.Result:
		if ev.OK {
			l.Note(KindInfo, ResultTag+ev.Value)
		} else {
			l.Note(KindError, ErrorTag+ev.Error)
		}
	}
}

// Notice appends an informational entry.
func (l *Log) Notice(text string) {
	l.Note(KindInfo, text)
}

// Note appends an entry and delivers it to taps and subscribers.
func (l *Log) Note(kind Kind, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{Kind: kind, Text: text, Time: l.now()}
	l.entries = append(l.entries, e)
	if l.capacity > 0 && len(l.entries) > l.capacity {
		l.entries = append(l.entries[:0:0], l.entries[len(l.entries)-l.capacity:]...)
	}

	for _, fn := range l.taps {
		fn(e)
	}
	for id, sub := range l.subs {
		select {
		case sub.ch <- e:
		default:
			// Full buffer: detach rather than skip, so the reader knows
			// its stream has a gap.
			sub.lagged.Store(true)
			delete(l.subs, id)
			close(sub.ch)
		}
	}
}

// Entries returns a copy of the current entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the log. Subscribers stay attached.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Tap calls fn synchronously with every entry appended from now on, in
// order, until detach is called. Rendering waits for fn, so a tap never
// misses an entry. fn must not call back into the Log.
func (l *Log) Tap(fn func(Entry)) (detach func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.taps[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.taps, id)
			l.mu.Unlock()
		})
	}
}

// Subscription is a buffered stream of entries. Rendering never waits for
// it; a subscriber that falls a full buffer behind is detached and its
// channel closed with Lagged reporting true.
type Subscription struct {
	// Backlog holds the entries present when subscribing, if requested.
	Backlog []Entry

	ch     chan Entry
	lagged atomic.Bool
	cancel func()
}

// C returns the entry stream. It is closed by Cancel or when the
// subscriber lags.
func (s *Subscription) C() <-chan Entry {
	return s.ch
}

// Lagged reports whether the log detached this subscription because its
// buffer filled up.
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// Cancel detaches the subscription and closes C. It is safe to call more
// than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Subscribe returns a stream of entries appended from now on.
func (l *Log) Subscribe() *Subscription {
	return l.subscribe(false)
}

// SubscribeWithBacklog is Subscribe that also captures the entries present
// at the moment of subscribing, so a new viewer misses and repeats nothing.
func (l *Log) SubscribeWithBacklog() *Subscription {
	return l.subscribe(true)
}

func (l *Log) subscribe(backlog bool) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &Subscription{ch: make(chan Entry, l.subBuffer)}
	if backlog {
		sub.Backlog = append([]Entry(nil), l.entries...)
	}

	id := l.nextID
	l.nextID++
	l.subs[id] = sub

	var once sync.Once
	sub.cancel = func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// A lagged subscription was already removed and closed.
			if l.subs[id] == sub {
				delete(l.subs, id)
				close(sub.ch)
			}
		})
	}
	return sub
}

func kindOf(level protocol.Level) Kind {
	switch level {
	case protocol.LevelWarn:
		return KindWarn
	case protocol.LevelError:
		return KindError
	default:
		return KindLog
	}
}
