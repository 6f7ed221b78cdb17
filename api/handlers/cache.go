package handlers

import (
	"errors"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/text2sqlctx/api"
	"github.com/BaSui01/text2sqlctx/cache"
	"github.com/BaSui01/text2sqlctx/types"
)

// =============================================================================
// 💾 缓存管理 Handler
// =============================================================================

// StatsObserver 接收统计快照，internal/metrics.Collector 实现了该接口
type StatsObserver interface {
	ObserveCacheStats(stats map[string]cache.Stats)
}

// CacheHandler 缓存管理处理器
type CacheHandler struct {
	boot     *cache.Bootstrap
	observer StatsObserver
	logger   *zap.Logger
}

// NewCacheHandler 创建缓存管理处理器，observer 可为 nil
func NewCacheHandler(boot *cache.Bootstrap, observer StatsObserver, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{
		boot:     boot,
		observer: observer,
		logger:   logger.With(zap.String("handler", "cache")),
	}
}

// Register 注册路由
func (h *CacheHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/cache/stats", h.HandleStats)
	mux.HandleFunc("GET /v1/cache/summary", h.HandleSummary)
	mux.HandleFunc("POST /v1/cache/clear", h.HandleClear)
	mux.HandleFunc("POST /v1/cache/reset-stats", h.HandleResetStats)
	mux.HandleFunc("PUT /v1/cache/profiles/{name}", h.HandleUpdateProfile)
}

// HandleStats 返回所有缓存实例的统计
// @Summary 缓存统计
// @Tags 缓存
// @Produce json
// @Success 200 {object} Response
// @Router /v1/cache/stats [get]
func (h *CacheHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.boot.AllStats()
	if h.observer != nil {
		h.observer.ObserveCacheStats(stats)
	}
	WriteSuccess(w, stats)
}

// HandleSummary 返回缓存系统摘要
// @Summary 缓存摘要
// @Tags 缓存
// @Produce json
// @Success 200 {object} Response
// @Router /v1/cache/summary [get]
func (h *CacheHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.boot.Summary())
}

// HandleClear 清空全部缓存，带 ?name= 时只清空指定缓存
// @Summary 清空缓存
// @Tags 缓存
// @Produce json
// @Param name query string false "缓存名称"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/cache/clear [post]
func (h *CacheHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		names := h.boot.Registry().Names()
		h.boot.ClearAll()
		WriteSuccess(w, api.ClearResponse{Cleared: names})
		return
	}

	// Cache(name) 会按需创建实例，先确认名称存在
	if !slices.Contains(h.boot.Registry().Names(), name) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "cache not found: "+name, h.logger)
		return
	}
	h.boot.Cache(name).Clear()
	WriteSuccess(w, api.ClearResponse{Cleared: []string{name}})
}

// HandleResetStats 重置所有缓存的命中统计
// @Summary 重置统计
// @Tags 缓存
// @Produce json
// @Success 200 {object} Response
// @Router /v1/cache/reset-stats [post]
func (h *CacheHandler) HandleResetStats(w http.ResponseWriter, r *http.Request) {
	h.boot.ResetAllStats()
	WriteSuccess(w, map[string]bool{"reset": true})
}

// HandleUpdateProfile 替换指定缓存的后端，原有内容会丢失
// @Summary 更新缓存配置
// @Tags 缓存
// @Accept json
// @Produce json
// @Param name path string true "缓存名称"
// @Param body body api.ProfileRequest true "新配置"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 422 {object} Response
// @Router /v1/cache/profiles/{name} [put]
func (h *CacheHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	name := r.PathValue("name")

	var req api.ProfileRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	profile := req.ToProfile()
	if err := h.boot.UpdateProfile(name, profile); err != nil {
		code := types.ErrInternalError
		if errors.Is(err, cache.ErrInvalidMaxSize) || profile.Validate() != nil {
			code = types.ErrInvalidProfile
		}
		WriteError(w, types.NewError(code, err.Error()).WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, api.NewProfileResponse(name, profile))
}
