// Package app wires QuickHub together. One App owns the tab store, the
// execution channel, the console log and the search dispatcher; the CLI and
// the HTTP server are views over it.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/caffeineduck/quickhub/channel"
	"github.com/caffeineduck/quickhub/console"
	"github.com/caffeineduck/quickhub/internal/config"
	"github.com/caffeineduck/quickhub/internal/monitoring"
	"github.com/caffeineduck/quickhub/protocol"
	"github.com/caffeineduck/quickhub/sandbox"
	"github.com/caffeineduck/quickhub/search"
	"github.com/caffeineduck/quickhub/storage"
	"github.com/caffeineduck/quickhub/tabs"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	BootNotice   = "[info] QuickHub loaded — sandbox initializing..."
	NothingToRun = "[info] nothing to run"
	echoPrefix   = "> "
)

type options struct {
	logger  *zap.Logger
	store   storage.Store
	fs      afero.Fs
	opener  search.Opener
	factory channel.Factory
	metrics *monitoring.Metrics
	lazy    bool
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore replaces the configured keyed store.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithFs sets the filesystem the file store lives on (the OS by default).
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

func WithOpener(op search.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithIsolateFactory replaces the isolate chosen by the configuration.
func WithIsolateFactory(f channel.Factory) Option {
	return func(o *options) { o.factory = f }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLazySandbox skips initializing the sandbox at startup. Commands that
// never run code use it.
func WithLazySandbox() Option {
	return func(o *options) { o.lazy = true }
}

type App struct {
	cfg    *config.Config
	logger *zap.Logger

	tabs    *tabs.Store
	console *console.Log
	channel *channel.Channel
	search  *search.Dispatcher
	metrics *monitoring.Metrics
}

// New builds an App from cfg. Unless WithLazySandbox is given, the sandbox
// starts initializing before New returns.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	store, err := openStore(cfg, &o)
	if err != nil {
		return nil, err
	}

	if o.opener == nil {
		o.opener = search.BrowserOpener{}
	}
	dispatcher, err := search.New(cfg.SearchURL, o.opener)
	if err != nil {
		return nil, err
	}

	if o.metrics == nil {
		o.metrics = monitoring.NewMetrics()
	}
	if o.factory == nil {
		o.factory = isolateFactory(cfg, o.logger)
	}

	log := console.NewLog()
	a := &App{
		cfg:     cfg,
		logger:  o.logger,
		tabs:    tabs.Open(store, tabs.WithLogger(o.logger.Named("tabs"))),
		console: log,
		search:  dispatcher,
		metrics: o.metrics,
		channel: channel.New(o.factory,
			channel.WithRenderer(log),
			channel.WithMetrics(o.metrics),
			channel.WithLogger(o.logger.Named("channel")),
			channel.WithRetryInterval(cfg.RetryInterval),
			channel.WithMaxRetries(cfg.MaxRetries),
		),
	}

	if !o.lazy {
		a.console.Notice(BootNotice)
		if err := a.channel.Initialize(); err != nil {
			// Not fatal: the next run tries again.
			a.logger.Warn("sandbox failed to start", zap.Error(err))
			a.console.Note(console.KindError, console.ErrorTag+err.Error())
		}
	}
	return a, nil
}

func openStore(cfg *config.Config, o *options) (storage.Store, error) {
	if o.store != nil {
		return o.store, nil
	}
	if cfg.Storage == config.StorageMemory {
		return storage.NewMemory(), nil
	}

	path, err := cfg.ResolvedStoragePath()
	if err != nil {
		return nil, err
	}
	fs := o.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	store, err := storage.OpenFile(fs, path, o.logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func isolateFactory(cfg *config.Config, logger *zap.Logger) channel.Factory {
	if cfg.Isolation == config.IsolationProcess {
		return func() (channel.Isolate, error) {
			return sandbox.NewProcess(
				sandbox.WithProcessLogger(logger.Named("sandbox")),
				sandbox.WithStderr(os.Stderr),
				sandbox.WithLimits(cfg.MaxCallStack, cfg.SandboxBuffer),
			), nil
		}
	}
	return func() (channel.Isolate, error) {
		return sandbox.NewFrame(
			sandbox.WithLogger(logger.Named("sandbox")),
			sandbox.WithMaxCallStackSize(cfg.MaxCallStack),
			sandbox.WithBuffer(cfg.SandboxBuffer),
		), nil
	}
}

func (a *App) Config() *config.Config {
	return a.cfg
}

func (a *App) Tabs() *tabs.Store {
	return a.tabs
}

func (a *App) Console() *console.Log {
	return a.console
}

func (a *App) Channel() *channel.Channel {
	return a.channel
}

func (a *App) Search() *search.Dispatcher {
	return a.search
}

func (a *App) Metrics() *monitoring.Metrics {
	return a.metrics
}

// RunConsole echoes code to the console and submits it. Output arrives on
// the console asynchronously. Blank input only notes that there is nothing
// to run and returns an empty id.
func (a *App) RunConsole(ctx context.Context, code string) (string, error) {
	if !a.echo(code) {
		return "", nil
	}
	id, err := a.channel.Execute(ctx, code)
	if err != nil {
		a.console.Note(console.KindError, console.ErrorTag+err.Error())
		return "", err
	}
	return id, nil
}

// Eval is RunConsole that waits for the result. ok is false for blank
// input.
func (a *App) Eval(ctx context.Context, code string) (res protocol.Result, ok bool, err error) {
	if !a.echo(code) {
		return protocol.Result{}, false, nil
	}
	res, err = a.channel.Run(ctx, code)
	if err != nil {
		a.console.Note(console.KindError, console.ErrorTag+err.Error())
		return protocol.Result{}, false, err
	}
	return res, true, nil
}

func (a *App) echo(code string) bool {
	if strings.TrimSpace(code) == "" {
		a.console.Note(console.KindInfo, NothingToRun)
		return false
	}
	a.console.Note(console.KindInfo, echoPrefix+code)
	return true
}

func (a *App) ClearConsole() {
	a.console.Clear()
}

// SearchQuery opens results for q through the configured opener. Blank queries return
// search.ErrEmptyQuery.
func (a *App) SearchQuery(ctx context.Context, q string) (string, error) {
	return a.search.Search(ctx, q)
}

// SearchActive opens results for the active tab's query.
func (a *App) SearchActive(ctx context.Context) (string, error) {
	return a.search.Search(ctx, a.tabs.Active().Query)
}

// Close shuts down the sandbox.
func (a *App) Close() error {
	return a.channel.Close()
}
