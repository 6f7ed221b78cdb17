package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/text2sqlctx/api/handlers"
	"github.com/BaSui01/text2sqlctx/cache"
	"github.com/BaSui01/text2sqlctx/config"
	"github.com/BaSui01/text2sqlctx/internal/metrics"
	"github.com/BaSui01/text2sqlctx/internal/server"
	"github.com/BaSui01/text2sqlctx/internal/telemetry"
	"github.com/BaSui01/text2sqlctx/memory"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装缓存、上下文管理器与管理接口
type Server struct {
	cfg       *config.Config
	loader    *config.Loader
	logger    *zap.Logger
	providers *telemetry.Providers

	registry  *prometheus.Registry
	collector *metrics.Collector

	boot    *cache.Bootstrap
	storage *memory.MemoryStorage
	memory  *memory.Manager
	watcher *config.ProfileWatcher

	httpManager    *server.Manager
	metricsManager *server.Manager

	// RateLimiter 清理 goroutine 与 watcher 的生命周期
	cancel context.CancelFunc
}

// NewServer 创建服务器实例，loader 用于配置热更新，providers 可为 nil
func NewServer(cfg *config.Config, loader *config.Loader, logger *zap.Logger, providers *telemetry.Providers) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		loader:    loader,
		logger:    logger,
		providers: providers,
		registry:  prometheus.NewRegistry(),
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化所有组件并启动 HTTP 与 Metrics 服务器（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.build(ctx)
	if err != nil {
		return err
	}

	s.httpManager = server.NewManager("admin", handler, server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.ListenAddr()))

	if s.cfg.Metrics.Enabled {
		s.metricsManager = server.NewManager("metrics", s.metricsHandler(), server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
		if err := s.metricsManager.Start(); err != nil {
			return err
		}
		s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.ListenAddr()))
	}

	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// build 初始化组件并返回带中间件的管理接口 handler，不监听端口
func (s *Server) build(ctx context.Context) (http.Handler, error) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.Metrics.Enabled {
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.collector = metrics.NewCollector(s.cfg.Metrics.Namespace, s.registry, s.logger)
	}

	s.initCache()
	s.initMemory()
	if err := s.initWatcher(); err != nil {
		return nil, err
	}

	return s.routes(ctx), nil
}

func (s *Server) initCache() {
	opts := []cache.RegistryOption{cache.WithDefaultMaxSize(s.cfg.Cache.DefaultMaxSize)}
	if s.collector != nil {
		opts = append(opts, cache.WithMetricsRecorder(s.collector))
	}
	s.boot = cache.NewBootstrap(cache.NewRegistry(s.logger, opts...), s.logger)

	// 单个配置失败时其余缓存照常可用，失败的缓存退化为无后端
	if err := s.boot.Initialize(s.cfg.Cache.Profiles); err != nil {
		s.logger.Error("some caches failed to initialize", zap.Error(err))
	}
}

func (s *Server) initMemory() {
	mc := s.cfg.Memory
	s.storage = memory.NewMemoryStorage(memory.MemoryStorageConfig{}, s.logger)

	opts := []memory.Option{
		memory.WithWindowSize(mc.WindowSize),
		memory.WithExpiry(mc.Expiry),
		memory.WithCleanupInterval(mc.CleanupInterval),
		memory.WithToolName(mc.ToolName),
	}
	if s.collector != nil {
		opts = append(opts, memory.WithMetrics(s.collector))
	}
	s.memory = memory.NewManager(s.storage, s.logger, opts...)
}

func (s *Server) initWatcher() error {
	if !s.cfg.Cache.WatchProfiles {
		return nil
	}
	if s.loader == nil || s.loader.ConfigPath() == "" {
		s.logger.Warn("profile watching enabled but no config file given, skipping")
		return nil
	}

	w, err := config.NewProfileWatcher(s.loader, s.boot, s.cfg.Cache.Profiles,
		config.WithPollInterval(s.cfg.Cache.WatchInterval),
		config.WithWatcherLogger(s.logger),
	)
	if err != nil {
		return err
	}
	w.OnChange(func(changes []config.ProfileChange) {
		if s.collector != nil {
			s.collector.ObserveCacheStats(s.boot.AllStats())
		}
		s.logger.Info("cache profiles reloaded", zap.Int("changes", len(changes)))
	})
	s.watcher = w
	return nil
}

// =============================================================================
// 🌐 路由
// =============================================================================

func (s *Server) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewCacheHealthCheck(s.boot))
	health.RegisterCheck(handlers.NewMemoryHealthCheck(s.storage))

	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	// collector 为 nil 时不能直接传给接口参数
	var observer handlers.StatsObserver
	if s.collector != nil {
		observer = s.collector
	}
	handlers.NewCacheHandler(s.boot, observer, s.logger).Register(mux)
	handlers.NewMemoryHandler(s.memory, s.logger).Register(mux)

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		UserIdentity(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if s.collector != nil {
		chain = append(chain, MetricsMiddleware(s.collector))
	}
	chain = append(chain, OTelTracing(s.providers.Tracer("text2sqlctx/http")))
	if s.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, chain...)
}

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return mux
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到信号或服务器异常退出，然后关闭全部组件
func (s *Server) WaitForShutdown(ctx context.Context) error {
	managers := make([]*server.Manager, 0, 2)
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m != nil {
			managers = append(managers, m)
		}
	}
	err := server.WaitForShutdown(ctx, s.logger, managers...)
	return errors.Join(err, s.Shutdown(context.Background()))
}

// Shutdown 停止后台任务并刷新遥测数据，HTTP 服务器由 WaitForShutdown 关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Starting graceful shutdown...")

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}

	// 最后一次统计快照，便于排查
	if s.boot != nil {
		summary := s.boot.Summary()
		s.logger.Info("cache summary at shutdown",
			zap.Int("caches", summary.TotalCaches),
			zap.Float64("hit_rate", summary.OverallHitRate),
			zap.String("memory", summary.MemoryEstimate))
	}

	if err := s.providers.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
		return err
	}
	return nil
}
