// Package server exposes an App over HTTP: a single-page UI, a JSON API for
// tabs, search and the console, and a WebSocket stream of console output.
package server

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"time"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/internal/monitoring"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed web/index.html
var webFS embed.FS

// Config contains server configuration
type Config struct {
	Addr      string
	RunRate   float64
	RunBurst  int
	CORS      CORSConfig
	DebugMode bool
}

// Server wraps the HTTP router and its dependencies.
type Server struct {
	app     *app.App
	logger  *zap.Logger
	metrics *monitoring.Metrics
	router  *gin.Engine
	addr    string
}

// New registers every route on a fresh gin engine.
func New(a *app.App, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		app:     a,
		logger:  logger,
		metrics: a.Metrics(),
		router:  gin.New(),
		addr:    cfg.Addr,
	}

	router := s.router
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(CORS(cfg.CORS))

	h := &handlers{app: a, logger: logger}
	ws := newWSHandler(a, s.metrics, logger)

	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/tabs", h.ListTabs)
		api.POST("/tabs", h.AddTab)
		api.POST("/tabs/:id/select", h.SelectTab)
		api.PATCH("/tabs/:id", h.UpdateTab)
		api.DELETE("/tabs/:id", h.CloseTab)

		api.GET("/search", h.Search)
		api.GET("/search/open", h.OpenResults)

		api.POST("/console/run", RateLimit(RateLimitConfig{
			RequestsPerSecond: cfg.RunRate,
			Burst:             cfg.RunBurst,
		}), h.RunConsole)
		api.GET("/console/log", h.ConsoleLog)
		api.DELETE("/console/log", h.ClearConsole)
	}

	router.GET("/ws/console", ws.HandleConnection)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
