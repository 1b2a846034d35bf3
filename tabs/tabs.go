// Package tabs keeps the ordered list of search tabs and the active one,
// saving a snapshot to a storage.Store after every change.
package tabs

import (
	"encoding/json"
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/caffeineduck/quickhub/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// StorageKey is the slot the snapshot is saved under.
	StorageKey   = "quickhub.tabs.v1"
	DefaultTitle = "New Tab"
	TitleLimit   = 24
	ellipsis     = "…"
)

var ErrTabNotFound = errors.New("tab not found")

type Tab struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Query string `json:"q"`
}

type snapshot struct {
	Tabs     []Tab  `json:"tabs"`
	ActiveID string `json:"activeId"`
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the tab id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Store is safe for concurrent use. There is always at least one tab and
// exactly one of them is active.
type Store struct {
	mu     sync.Mutex
	store  storage.Store
	logger *zap.Logger
	newID  func() string

	tabs   []Tab
	active string
}

func newID() string {
	return uuid.NewString()[:8]
}

// Open loads the saved snapshot from store. A missing, unreadable or empty
// snapshot starts over with a single blank tab.
func Open(store storage.Store, opts ...Option) *Store {
	s := &Store{
		store:  store,
		logger: zap.NewNop(),
		newID:  newID,
	}
	for _, opt := range opts {
		opt(s)
	}

	if snap, ok := s.load(); ok {
		s.tabs = snap.Tabs
		s.active = snap.ActiveID
		if s.index(s.active) < 0 {
			s.active = s.tabs[0].ID
		}
		return s
	}

	s.tabs = []Tab{s.blank()}
	s.active = s.tabs[0].ID
	return s
}

func (s *Store) load() (snapshot, bool) {
	raw, ok, err := s.store.Get(StorageKey)
	if err != nil {
		s.logger.Warn("load tabs", zap.Error(err))
		return snapshot{}, false
	}
	if !ok {
		return snapshot{}, false
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.logger.Warn("ignoring invalid tab snapshot", zap.Error(err))
		return snapshot{}, false
	}
	if len(snap.Tabs) == 0 {
		return snapshot{}, false
	}
	return snap, true
}

// save is best-effort: failures are logged, never returned. Must be called
// with s.mu held.
func (s *Store) save() {
	raw, err := json.Marshal(snapshot{Tabs: s.tabs, ActiveID: s.active})
	if err != nil {
		s.logger.Warn("encode tabs", zap.Error(err))
		return
	}
	if err := s.store.Set(StorageKey, string(raw)); err != nil {
		s.logger.Warn("save tabs", zap.Error(err))
	}
}

func (s *Store) blank() Tab {
	return Tab{ID: s.newID(), Title: DefaultTitle}
}

func (s *Store) index(id string) int {
	for i, t := range s.tabs {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// List returns the tabs in display order.
func (s *Store) List() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Tab(nil), s.tabs...)
}

func (s *Store) Get(id string) (Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Tab{}, ErrTabNotFound
	}
	return s.tabs[i], nil
}

func (s *Store) Active() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabs[s.index(s.active)]
}

// Add appends a blank tab and activates it.
func (s *Store) Add() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.blank()
	s.tabs = append(s.tabs, t)
	s.active = t.ID
	s.save()
	return t
}

func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(id) < 0 {
		return ErrTabNotFound
	}
	s.active = id
	s.save()
	return nil
}

// Close removes a tab. When it was active, the tab that slides into its
// position becomes active, or the first tab when it was the last one.
// Closing the only tab replaces it with a blank one.
func (s *Store) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return ErrTabNotFound
	}
	s.tabs = append(s.tabs[:i], s.tabs[i+1:]...)

	if len(s.tabs) == 0 {
		t := s.blank()
		s.tabs = []Tab{t}
		s.active = t.ID
	} else if s.active == id {
		if i < len(s.tabs) {
			s.active = s.tabs[i].ID
		} else {
			s.active = s.tabs[0].ID
		}
	}
	s.save()
	return nil
}

// Rename sets a tab's title. An empty title resets it to DefaultTitle.
func (s *Store) Rename(id, title string) (Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Tab{}, ErrTabNotFound
	}
	if title == "" {
		title = DefaultTitle
	}
	s.tabs[i].Title = title
	s.save()
	return s.tabs[i], nil
}

// SetQuery stores the query typed into a tab and retitles the tab after it.
func (s *Store) SetQuery(id, query string) (Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Tab{}, ErrTabNotFound
	}
	s.tabs[i].Query = query
	s.tabs[i].Title = TitleFor(query)
	s.save()
	return s.tabs[i], nil
}

// ApplyQuery sets the active tab's query, as when the page is opened with a
// q parameter. An empty query changes nothing.
func (s *Store) ApplyQuery(query string) Tab {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(s.active)
	if query != "" {
		s.tabs[i].Query = query
		s.tabs[i].Title = TitleFor(query)
		s.save()
	}
	return s.tabs[i]
}

// TitleFor derives a tab title from a query: the first TitleLimit runes,
// with an ellipsis when cut, or DefaultTitle when empty.
func TitleFor(query string) string {
	if query == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(query) <= TitleLimit {
		return query
	}
	return string([]rune(query)[:TitleLimit]) + ellipsis
}
