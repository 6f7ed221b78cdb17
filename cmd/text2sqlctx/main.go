// =============================================================================
// text2sqlctx 主入口
// =============================================================================
// 缓存与多轮对话上下文服务，包含管理接口、健康检查、Prometheus 指标
//
// 使用方法:
//
//	text2sqlctx serve                       # 启动服务
//	text2sqlctx serve --config config.yaml  # 指定配置文件
//	text2sqlctx normalize "查询 上个月 的订单"  # 查看问题规范化结果
//	text2sqlctx key --question "..." --dataset sales
//	text2sqlctx version                     # 显示版本信息
//	text2sqlctx health                      # 健康检查
// =============================================================================

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/text2sqlctx/cache"
	"github.com/BaSui01/text2sqlctx/config"
	"github.com/BaSui01/text2sqlctx/internal/telemetry"
	"github.com/BaSui01/text2sqlctx/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "text2sqlctx",
		Short: "Text2SQL cache and conversation context service",
		Long: `text2sqlctx 为 Text2SQL 工具提供进程内缓存与多轮对话上下文，
并通过管理接口暴露缓存统计、热更新与上下文查询能力。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newServeCmd(),
		newNormalizeCmd(),
		newKeyCmd(),
		newVersionCmd(),
		newHealthCmd(),
	)
	return root
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin and metrics servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting text2sqlctx",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		// 遥测不可用不影响服务
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, loader, logger, providers)
	if err := srv.Start(ctx); err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}

	waitErr := srv.WaitForShutdown(ctx)
	logger.Info("text2sqlctx stopped")
	return waitErr
}

// =============================================================================
// 🔤 normalize / key 命令
// =============================================================================

func newNormalizeCmd() *cobra.Command {
	var keepStopwords bool

	cmd := &cobra.Command{
		Use:   "normalize <question>",
		Short: "Print the normalized form of a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := cache.NormalizeQuery(strings.Join(args, " "), !keepStopwords)
			fmt.Fprintln(cmd.OutOrStdout(), q)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepStopwords, "keep-stopwords", false, "Do not remove stopwords")
	return cmd
}

func newKeyCmd() *cobra.Command {
	var p cache.SQLKeyParams

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the SQL cache key for a question",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(p.Question) == "" {
				return fmt.Errorf("--question is required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), cache.SQLCacheKey(p))
			return nil
		},
	}
	cmd.Flags().StringVarP(&p.Question, "question", "q", "", "Natural language question")
	cmd.Flags().StringVar(&p.Dialect, "dialect", "", "SQL dialect")
	cmd.Flags().StringVar(&p.DatasetID, "dataset", "", "Dataset ID")
	cmd.Flags().StringVar(&p.PromptPrefix, "prompt-prefix", "", "Prompt template prefix")
	return cmd
}

// =============================================================================
// 🏥 健康检查 / 📋 版本
// =============================================================================

func newHealthCmd() *cobra.Command {
	var (
		addr string
		opts tlsutil.ClientOptions
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := tlsutil.NewClient(opts)
			resp, err := client.Get(strings.TrimRight(addr, "/") + "/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: status %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server address")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "Request timeout")
	cmd.Flags().BoolVar(&opts.InsecureSkipVerify, "insecure", false, "Skip TLS certificate verification")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "text2sqlctx %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
