// =============================================================================
// 📦 text2sqlctx 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/text2sqlctx/cache"
	"github.com/BaSui01/text2sqlctx/memory"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Cache:     DefaultCacheConfig(),
		Memory:    DefaultMemoryConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultMaxSize: 100,
		Profiles:       cache.DefaultProfiles(),
		WatchProfiles:  false,
		WatchInterval:  5 * time.Second,
	}
}

// DefaultMemoryConfig 返回默认对话上下文配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		WindowSize:      memory.DefaultWindowSize,
		Expiry:          memory.DefaultExpiry,
		CleanupInterval: memory.DefaultCleanupInterval,
		ToolName:        memory.DefaultToolName,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "text2sqlctx",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "text2sqlctx",
		SampleRate:   0.1,
	}
}
