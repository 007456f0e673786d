package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/GriffinCanCode/AgentOS/opbridge/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/executor"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/host"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/ops"
)

const shutdownTimeout = 10 * time.Second

// Server exposes a host channel over HTTP and WebSocket.
type Server struct {
	router  *gin.Engine
	channel *host.Channel
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logger   *logging.Logger
	registry *ops.Registry
	promReg  *prometheus.Registry
}

// WithLogger sets the server logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry serves reg instead of the builtin ops.
func WithRegistry(reg *ops.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithPrometheusRegistry registers metrics on reg.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.promReg = reg }
}

// NewServer wires the channel, middleware and routes.
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, err
		}
	}

	promReg := o.promReg
	if promReg == nil {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics := monitoring.NewMetrics(promReg)
	tracer := tracing.New("opbridge", logger.Component("tracing"))

	reg := o.registry
	if reg == nil {
		reg = ops.NewDefaultRegistry(
			dispatch.WithStrict(cfg.Runtime.StrictContract),
			dispatch.WithLogger(logger.Component("dispatch")),
		)
	}

	// A broken future fails its own call; it must not stop the loop every
	// other caller shares.
	loop := executor.New(
		executor.WithLogger(logger.Component("executor")),
		executor.WithRecorder(metrics),
		executor.WithBlockingThreads(cfg.Runtime.BlockingThreads),
		executor.WithFailFast(false),
	)

	start := ops.DefaultStartInfo(nil)
	start.Unstable = cfg.Runtime.Unstable
	channel := host.New(reg,
		host.WithLogger(logger.Component("host")),
		host.WithMetrics(metrics),
		host.WithLoop(loop),
		host.WithStateOptions(
			ops.WithPermissions(ops.NewPermissions(ops.FromConfig(cfg.Permissions))),
			ops.WithStartInfo(start),
		),
	)

	logger.Info("Initializing op bridge server",
		zap.String("addr", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)),
		zap.Int("ops", reg.Len()),
		zap.Bool("strict_contract", cfg.Runtime.StrictContract),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.NewLimiter(cfg.RateLimit)))
	}

	handlers := httpapi.NewHandlers(channel, metrics, tracer, logger.Component("http"), cfg.Runtime.ScriptTimeout)
	wsHandler := ws.NewHandler(channel, metrics, logger.Component("ws"))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	router.GET("/ops", handlers.ListOps)
	router.POST("/ops/:name", handlers.CallOp)
	router.GET("/ws", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", handlers.MetricsJSON)
	router.GET("/debug/traces", handlers.Traces)

	return &Server{
		router:  router,
		channel: channel,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Channel returns the host channel behind the routes.
func (s *Server) Channel() *host.Channel {
	return s.channel
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.channel.Run(ctx)
	})
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.channel.Close()
		return err
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the channel and flushes logs.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.channel.Close()
	s.tracer.Close()
	s.logger.Sync()
	return nil
}
