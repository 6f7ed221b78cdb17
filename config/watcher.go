// 缓存配置热更新。
//
// 轮询配置文件的修改时间，变更后重新加载并应用有差异的缓存配置。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/text2sqlctx/cache"
)

// ProfileApplier 接收变更后的缓存配置，cache.Bootstrap 满足该接口
type ProfileApplier interface {
	UpdateProfile(name string, p cache.Profile) error
}

// ProfileChange 一次被应用的配置变更
type ProfileChange struct {
	Name    string        `json:"name"`
	Old     cache.Profile `json:"old"`
	New     cache.Profile `json:"new"`
	Applied bool          `json:"applied"`
	Error   string        `json:"error,omitempty"`
}

// --- 监听器 ---

// ProfileWatcher 监听配置文件并热更新缓存配置
type ProfileWatcher struct {
	mu sync.Mutex

	loader   *Loader
	applier  ProfileApplier
	interval time.Duration
	logger   *zap.Logger

	current  cache.Profiles
	lastMod  time.Time
	running  bool
	stopChan chan struct{}

	callbacks []func([]ProfileChange)
}

// WatcherOption 配置 ProfileWatcher
type WatcherOption func(*ProfileWatcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *ProfileWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger 设置日志记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *ProfileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewProfileWatcher 创建监听器。initial 为当前已生效的配置表。
func NewProfileWatcher(loader *Loader, applier ProfileApplier, initial cache.Profiles, opts ...WatcherOption) (*ProfileWatcher, error) {
	if loader == nil || loader.ConfigPath() == "" {
		return nil, errors.New("profile watcher requires a loader with a config path")
	}
	if applier == nil {
		return nil, errors.New("profile watcher requires an applier")
	}

	w := &ProfileWatcher{
		loader:   loader,
		applier:  applier,
		interval: time.Second,
		logger:   zap.NewNop(),
		current:  cloneProfiles(initial),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "profile_watcher"))

	if info, err := os.Stat(loader.ConfigPath()); err == nil {
		w.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat path %s: %w", loader.ConfigPath(), err)
	} else {
		w.logger.Warn("config file does not exist, will watch for creation",
			zap.String("path", loader.ConfigPath()))
	}

	return w, nil
}

// OnChange 注册变更回调，每次检查出差异后调用一次
func (w *ProfileWatcher) OnChange(callback func([]ProfileChange)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动轮询
func (w *ProfileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	// Stop 会关闭旧通道，重新启动时需要新的通道
	w.stopChan = make(chan struct{})
	stop := w.stopChan
	w.mu.Unlock()

	go w.pollLoop(ctx, stop)

	w.logger.Info("profile watcher started",
		zap.String("path", w.loader.ConfigPath()),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop 停止轮询，可重复调用，停止后可以再次 Start
func (w *ProfileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopChan)
	w.running = false
	w.logger.Info("profile watcher stopped")
}

// IsRunning 返回是否在运行
func (w *ProfileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Current 返回当前生效的配置表副本
func (w *ProfileWatcher) Current() cache.Profiles {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneProfiles(w.current)
}

func (w *ProfileWatcher) pollLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := w.CheckNow(); err != nil {
				w.logger.Warn("profile reload failed", zap.Error(err))
			}
		}
	}
}

// CheckNow 检查一次文件，文件未修改时直接返回 nil。
// 重新加载失败时保留旧配置。
func (w *ProfileWatcher) CheckNow() ([]ProfileChange, error) {
	info, err := os.Stat(w.loader.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	w.mu.Lock()
	if !info.ModTime().After(w.lastMod) {
		w.mu.Unlock()
		return nil, nil
	}
	w.lastMod = info.ModTime()
	w.mu.Unlock()

	cfg, err := w.loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Cache.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	changes := w.apply(cfg.Cache.Profiles)
	if len(changes) == 0 {
		return nil, nil
	}

	w.mu.Lock()
	callbacks := make([]func([]ProfileChange), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(changes)
	}
	return changes, nil
}

// apply 只处理新增或修改的条目。配置表中删除的条目保持运行中的实例不变。
func (w *ProfileWatcher) apply(next cache.Profiles) []ProfileChange {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(next))
	for name := range next {
		names = append(names, name)
	}
	sort.Strings(names)

	var changes []ProfileChange
	for _, name := range names {
		p := next[name]
		old, ok := w.current[name]
		if ok && old == p {
			continue
		}

		change := ProfileChange{Name: name, Old: old, New: p}
		if err := w.applier.UpdateProfile(name, p); err != nil {
			change.Error = err.Error()
			w.logger.Error("failed to apply cache profile",
				zap.String("cache", name), zap.Error(err))
		} else {
			change.Applied = true
			w.current[name] = p
			w.logger.Info("cache profile updated",
				zap.String("cache", name),
				zap.String("type", string(p.Type)),
				zap.Int("max_size", p.MaxSize))
		}
		changes = append(changes, change)
	}
	return changes
}

func cloneProfiles(p cache.Profiles) cache.Profiles {
	out := make(cache.Profiles, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
