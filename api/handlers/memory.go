package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/text2sqlctx/api"
	"github.com/BaSui01/text2sqlctx/memory"
	"github.com/BaSui01/text2sqlctx/types"
)

// =============================================================================
// 💬 对话上下文 Handler
// =============================================================================

// MemoryHandler 对话上下文处理器
type MemoryHandler struct {
	manager *memory.Manager
	logger  *zap.Logger
}

// NewMemoryHandler 创建对话上下文处理器
func NewMemoryHandler(manager *memory.Manager, logger *zap.Logger) *MemoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHandler{
		manager: manager,
		logger:  logger.With(zap.String("handler", "memory")),
	}
}

// Register 注册路由
func (h *MemoryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/memory/stats", h.HandleStats)
	mux.HandleFunc("GET /v1/memory/history", h.HandleHistory)
	mux.HandleFunc("POST /v1/memory/reset", h.HandleReset)
}

// HandleStats 返回上下文存储统计
// @Summary 上下文存储统计
// @Tags 对话上下文
// @Produce json
// @Success 200 {object} Response
// @Router /v1/memory/stats [get]
func (h *MemoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.manager.StorageStats(r.Context()))
}

// HandleHistory 返回窗口化历史。user_id 缺省时取 X-User-ID 头
// @Summary 对话历史
// @Tags 对话上下文
// @Produce json
// @Param user_id query string false "用户 ID"
// @Param tool query string false "工具名"
// @Param window query int false "窗口大小"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/memory/history [get]
func (h *MemoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID := resolveUserID(r, q.Get("user_id"))
	if userID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "user_id is required", h.logger)
		return
	}

	window := 0
	if raw := q.Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "window must be a non-negative integer", h.logger)
			return
		}
		window = n
	}
	if window <= 0 {
		window = h.manager.WindowSize()
	}

	tool := q.Get("tool")
	history := h.manager.GetConversationHistory(r.Context(), userID, tool, window)
	if tool == "" {
		tool = h.manager.ToolName()
	}

	WriteSuccess(w, api.HistoryResponse{
		UserID:        userID,
		ToolName:      tool,
		Window:        window,
		Conversations: history,
	})
}

// HandleReset 清空历史，保留上下文本身
// @Summary 重置对话上下文
// @Tags 对话上下文
// @Accept json
// @Produce json
// @Param body body api.ResetMemoryRequest true "用户与工具"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 503 {object} Response
// @Router /v1/memory/reset [post]
func (h *MemoryHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ResetMemoryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	userID := resolveUserID(r, req.UserID)
	if userID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "user_id is required", h.logger)
		return
	}

	if !h.manager.ResetMemory(r.Context(), userID, req.ToolName) {
		WriteError(w, types.NewError(types.ErrStorageFailure, "failed to reset memory").WithRetryable(true), h.logger)
		return
	}

	tool := req.ToolName
	if tool == "" {
		tool = h.manager.ToolName()
	}
	WriteSuccess(w, api.ResetMemoryResponse{UserID: userID, ToolName: tool, Reset: true})
}

// resolveUserID 显式参数优先，其次是中间件放入 context 的用户 ID
func resolveUserID(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id, ok := types.UserID(r.Context()); ok {
		return id
	}
	return ""
}
