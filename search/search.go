// Package search turns free-text queries into web search URLs and opens
// them outside the application.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

// DefaultBaseURL is the search endpoint queries are sent to.
const DefaultBaseURL = "https://www.google.com/search"

var ErrEmptyQuery = errors.New("enter a search query")

// Opener displays a URL in a new external context.
type Opener interface {
	Open(ctx context.Context, url string) error
}

type Dispatcher struct {
	base   *url.URL
	opener Opener
}

// New returns a Dispatcher for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opener Opener) (*Dispatcher, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("search url %q: scheme must be http or https", baseURL)
	}
	return &Dispatcher{base: u, opener: opener}, nil
}

// URL builds the search URL. The trimmed query is set as q; a blank query
// leaves the base URL untouched.
func (d *Dispatcher) URL(query string) string {
	u := *d.base
	if q := strings.TrimSpace(query); q != "" {
		values := u.Query()
		values.Set("q", q)
		u.RawQuery = values.Encode()
	}
	return u.String()
}

// Search opens the results for query. Blank queries are rejected.
func (d *Dispatcher) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}
	return d.OpenResults(ctx, query)
}

// OpenResults opens the search URL for query, even when it is blank.
func (d *Dispatcher) OpenResults(ctx context.Context, query string) (string, error) {
	target := d.URL(query)
	if err := d.opener.Open(ctx, target); err != nil {
		return "", fmt.Errorf("open %s: %w", target, err)
	}
	return target, nil
}

// RecordingOpener keeps opened URLs instead of displaying them. The server
// uses it to hand URLs back as redirects.
type RecordingOpener struct {
	mu   sync.Mutex
	urls []string
}

func (r *RecordingOpener) Open(_ context.Context, url string) error {
	r.mu.Lock()
	r.urls = append(r.urls, url)
	r.mu.Unlock()
	return nil
}

func (r *RecordingOpener) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

// WriterOpener prints URLs, one per line, for environments without a
// browser.
type WriterOpener struct {
	W io.Writer
}

func (w WriterOpener) Open(_ context.Context, url string) error {
	_, err := fmt.Fprintln(w.W, url)
	return err
}
