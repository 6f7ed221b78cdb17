package cache

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const instrumentationName = "github.com/BaSui01/text2sqlctx/cache"

// DefaultKeyPrefix 无法取得函数名时使用的键前缀
const DefaultKeyPrefix = "cacheable"

// Func 可被缓存包装的函数签名
type Func[V any] func(ctx context.Context, args ...any) (V, error)

// CacheableOptions 缓存包装选项
type CacheableOptions[V any] struct {
	// KeyPrefix 默认键生成使用的前缀，为空时使用被包装函数的全名
	KeyPrefix string

	// TTL 写入时的过期时间，0 表示使用后端默认值
	TTL time.Duration

	// KeyFunc 自定义键生成。返回错误或 panic 时回退到默认键
	KeyFunc func(args ...any) (string, error)

	// Condition 返回 false 时不缓存结果。panic 时按 true 处理
	Condition func(result V) bool
}

// Cacheable 用旁路缓存包装 fn
//
// 命中时直接返回缓存值；未命中时调用 fn，成功且满足 Condition 时写入缓存。
// 错误结果永远不缓存。同一个键的并发未命中只会执行一次 fn，
// 其他调用方共享第一个调用方的结果（包括其 ctx 下产生的错误）。
func Cacheable[V any](m *Manager, fn Func[V], opts CacheableOptions[V]) Func[V] {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = FuncKeyPrefix(fn)
	}
	var setOpts []SetOption
	if opts.TTL != 0 {
		setOpts = append(setOpts, WithTTL(opts.TTL))
	}

	tracer := otel.Tracer(instrumentationName)
	logger := m.logger.With(zap.String("key_prefix", opts.KeyPrefix))
	var group singleflight.Group

	return func(ctx context.Context, args ...any) (V, error) {
		key := deriveKey(logger, opts, args)

		ctx, span := tracer.Start(ctx, "cache.cacheable",
			trace.WithAttributes(
				attribute.String("cache.name", m.Name()),
				attribute.String("cache.key", key),
			))
		defer span.End()

		if cached, ok := m.Get(key); ok {
			if v, ok := cached.(V); ok {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return v, nil
			}
			logger.Warn("cached value has unexpected type, recomputing",
				zap.String("key", key),
				zap.String("type", fmt.Sprintf("%T", cached)))
		}
		span.SetAttributes(attribute.Bool("cache.hit", false))

		res, err, shared := group.Do(key, func() (any, error) {
			v, err := fn(ctx, args...)
			if err != nil {
				return v, err
			}
			if shouldStore(logger, opts.Condition, v) {
				m.Set(key, v, setOpts...)
			}
			return v, nil
		})
		span.SetAttributes(attribute.Bool("cache.shared", shared))

		v, _ := res.(V)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return v, err
		}
		return v, nil
	}
}

// FuncKeyPrefix 返回 fn 的全名（包路径 + 函数名），用作默认键前缀。
// 不同的函数（包括不同的闭包）得到不同的前缀，共享同一个 Manager 时键不会互相覆盖。
func FuncKeyPrefix[V any](fn Func[V]) string {
	if fn == nil {
		return DefaultKeyPrefix
	}
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return DefaultKeyPrefix
	}
	name := f.Name()
	// 泛型实例化会带上 "[...]"
	name = strings.ReplaceAll(name, "[...]", "")
	if name == "" {
		return DefaultKeyPrefix
	}
	return name
}

// InvalidateAfter 包装 fn：调用成功后删除指定的键，未指定键时清空整个缓存
func InvalidateAfter[V any](m *Manager, fn Func[V], keys ...string) Func[V] {
	return func(ctx context.Context, args ...any) (V, error) {
		v, err := fn(ctx, args...)
		if err != nil {
			return v, err
		}
		if len(keys) == 0 {
			m.Clear()
			return v, nil
		}
		for _, k := range keys {
			m.Delete(k)
		}
		return v, nil
	}
}

func deriveKey[V any](logger *zap.Logger, opts CacheableOptions[V], args []any) (key string) {
	if opts.KeyFunc == nil {
		return GenerateCacheKey(opts.KeyPrefix, args, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("custom key func panicked, using default key", zap.Any("panic", r))
			key = GenerateCacheKey(opts.KeyPrefix, args, nil)
		}
	}()

	k, err := opts.KeyFunc(args...)
	if err != nil {
		logger.Warn("custom key func failed, using default key", zap.Error(err))
		return GenerateCacheKey(opts.KeyPrefix, args, nil)
	}
	return k
}

func shouldStore[V any](logger *zap.Logger, cond func(V) bool, v V) (store bool) {
	if cond == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("cache condition panicked, caching result", zap.Any("panic", r))
			store = true
		}
	}()
	return cond(v)
}
