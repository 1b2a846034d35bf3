package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caffeineduck/quickhub/channel"
	"github.com/caffeineduck/quickhub/console"
	"github.com/caffeineduck/quickhub/internal/config"
	"github.com/caffeineduck/quickhub/search"
	"github.com/caffeineduck/quickhub/storage"
	"github.com/caffeineduck/quickhub/tabs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	cfg.RetryInterval = 10 * time.Millisecond
	return cfg
}

func newApp(t *testing.T, opts ...Option) (*App, *search.RecordingOpener) {
	t.Helper()
	rec := &search.RecordingOpener{}
	a, err := New(testConfig(), append([]Option{WithOpener(rec)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, rec
}

func texts(entries []console.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestBootNotice(t *testing.T) {
	a, _ := newApp(t)

	assert.Equal(t, BootNotice, a.Console().Entries()[0].Text)
	assert.NotEqual(t, channel.Uninitialized, a.Channel().State())

	assert.Eventually(t, func() bool {
		return a.Channel().State() == channel.Ready
	}, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, texts(a.Console().Entries()), "[sandbox] ready")
}

func TestLazySandbox(t *testing.T) {
	a, _ := newApp(t, WithLazySandbox())
	assert.Equal(t, channel.Uninitialized, a.Channel().State())
	assert.Empty(t, a.Console().Entries())
}

func TestEvalTranscript(t *testing.T) {
	a, _ := newApp(t)
	require.Eventually(t, func() bool {
		return a.Channel().State() == channel.Ready
	}, 5*time.Second, 5*time.Millisecond)

	res, ok, err := a.Eval(context.Background(), `console.log("hi"); return 42;`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", res.Value)

	got := texts(a.Console().Entries())
	assert.Equal(t, []string{
		`> console.log("hi"); return 42;`,
		"hi",
		"[result] 42",
	}, got[len(got)-3:])
}

func TestEvalError(t *testing.T) {
	a, _ := newApp(t)

	res, ok, err := a.Eval(context.Background(), `throw new Error("boom")`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, res.OK)

	entries := a.Console().Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, console.KindError, last.Kind)
	assert.Equal(t, "[error] Error: boom", last.Text)
}

func TestRunConsoleBlank(t *testing.T) {
	a, _ := newApp(t, WithLazySandbox())

	id, err := a.RunConsole(context.Background(), "   \n")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, []string{NothingToRun}, texts(a.Console().Entries()))
	assert.Equal(t, channel.Uninitialized, a.Channel().State())
}

func TestRunConsoleAsync(t *testing.T) {
	a, _ := newApp(t)
	sub := a.Console().Subscribe()
	defer sub.Cancel()

	id, err := a.RunConsole(context.Background(), `return "async";`)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-sub.C():
			if e.Text == `[result] "async"` {
				return
			}
		case <-timeout:
			t.Fatal("result never reached the console")
		}
	}
}

func TestRunConsoleReportsFailure(t *testing.T) {
	a, _ := newApp(t, WithLazySandbox(), WithIsolateFactory(func() (channel.Isolate, error) {
		return nil, errors.New("engine missing")
	}))

	_, err := a.RunConsole(context.Background(), "1")
	assert.ErrorContains(t, err, "engine missing")

	entries := a.Console().Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, console.KindError, last.Kind)
	assert.Contains(t, last.Text, "engine missing")
}

func TestClearConsole(t *testing.T) {
	a, _ := newApp(t, WithLazySandbox())
	a.RunConsole(context.Background(), "")
	a.ClearConsole()
	assert.Empty(t, a.Console().Entries())
}

func TestSearch(t *testing.T) {
	a, rec := newApp(t, WithLazySandbox())

	u, err := a.SearchQuery(context.Background(), "go channels")
	require.NoError(t, err)
	assert.Equal(t, "https://www.google.com/search?q=go+channels", u)

	_, err = a.SearchQuery(context.Background(), " ")
	assert.ErrorIs(t, err, search.ErrEmptyQuery)

	tab := a.Tabs().Active()
	_, err = a.Tabs().SetQuery(tab.ID, "active tab")
	require.NoError(t, err)
	u, err = a.SearchActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://www.google.com/search?q=active+tab", u)

	assert.Len(t, rec.URLs(), 2)
}

func TestFileStorageFromConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := testConfig()
	cfg.Storage = config.StorageFile
	cfg.StoragePath = "/state/store.json"

	a, err := New(cfg, WithFs(fs), WithLazySandbox(), WithOpener(&search.RecordingOpener{}))
	require.NoError(t, err)
	a.Tabs().SetQuery(a.Tabs().Active().ID, "persisted")
	require.NoError(t, a.Close())

	exists, err := afero.Exists(fs, "/state/store.json")
	require.NoError(t, err)
	assert.True(t, exists)

	b, err := New(cfg, WithFs(fs), WithLazySandbox(), WithOpener(&search.RecordingOpener{}))
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "persisted", b.Tabs().Active().Query)
}

func TestWithStore(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.Set(tabs.StorageKey, `{"tabs":[{"id":"x","title":"Saved","q":"s"}],"activeId":"x"}`))

	a, _ := newApp(t, WithStore(store), WithLazySandbox())
	assert.Equal(t, "Saved", a.Tabs().Active().Title)
}

func TestBadSearchURL(t *testing.T) {
	cfg := testConfig()
	cfg.SearchURL = "gopher://nope"
	_, err := New(cfg, WithLazySandbox())
	assert.Error(t, err)
}
