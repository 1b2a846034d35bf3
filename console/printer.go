package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Printer writes entries to a terminal, one per line, colored by kind.
type Printer struct {
	w      io.Writer
	colors map[Kind]*color.Color
	hidden map[Kind]bool
}

// NewPrinter returns a Printer for w. Colors follow fatih/color's detection
// unless noColor is set.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	colors := map[Kind]*color.Color{
		KindInfo:  color.New(color.FgCyan),
		KindLog:   color.New(color.Reset),
		KindWarn:  color.New(color.FgYellow),
		KindError: color.New(color.FgRed, color.Bold),
	}
	if noColor {
		for _, c := range colors {
			c.DisableColor()
		}
	}
	return &Printer{w: w, colors: colors, hidden: make(map[Kind]bool)}
}

// Hide suppresses entries of the given kinds.
func (p *Printer) Hide(kinds ...Kind) *Printer {
	for _, k := range kinds {
		p.hidden[k] = true
	}
	return p
}

// Print writes e unless its kind is hidden.
func (p *Printer) Print(e Entry) error {
	if p.hidden[e.Kind] {
		return nil
	}
	c, ok := p.colors[e.Kind]
	if !ok {
		c = p.colors[KindLog]
	}
	_, err := c.Fprintln(p.w, e.Text)
	return err
}

// Attach prints every entry appended to l from now on, synchronously and in
// order. Printing stops at the first write error; detach stops it too and
// returns that error.
func (p *Printer) Attach(l *Log) (detach func() error) {
	var (
		mu  sync.Mutex
		err error
	)
	untap := l.Tap(func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			return
		}
		if werr := p.Print(e); werr != nil {
			err = fmt.Errorf("print console: %w", werr)
		}
	})
	return func() error {
		untap()
		mu.Lock()
		defer mu.Unlock()
		return err
	}
}
