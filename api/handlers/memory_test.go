package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/text2sqlctx/api"
	"github.com/BaSui01/text2sqlctx/memory"
	"github.com/BaSui01/text2sqlctx/testutil"
	"github.com/BaSui01/text2sqlctx/testutil/mocks"
	"github.com/BaSui01/text2sqlctx/types"
)

func newMemoryMux(t *testing.T, storage memory.Storage) (*http.ServeMux, *memory.Manager) {
	t.Helper()
	clock := testutil.NewFakeClock(testutil.Epoch)
	mgr := memory.NewManager(storage, nil, memory.WithClock(clock.Now))
	mux := http.NewServeMux()
	NewMemoryHandler(mgr, nil).Register(mux)
	return mux, mgr
}

func TestMemoryHandler_History(t *testing.T) {
	mux, mgr := newMemoryMux(t, nil)
	ctx := testutil.TestContext(t)
	for i := 1; i <= 5; i++ {
		require.True(t, mgr.AddConversation(ctx, "analyst", "", fmt.Sprintf("C%d", i), fmt.Sprintf("SELECT %d", i), nil))
	}

	w := serve(mux, http.MethodGet, "/v1/memory/history?user_id=analyst&window=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	// 没有元数据的记录也输出 metadata 字段
	assert.Contains(t, w.Body.String(), `"metadata":{}`)
	resp := decode[api.HistoryResponse](t, w).Data
	assert.Equal(t, "analyst", resp.UserID)
	assert.Equal(t, memory.DefaultToolName, resp.ToolName)
	assert.Equal(t, 2, resp.Window)
	require.Len(t, resp.Conversations, 2)
	assert.Equal(t, "C4", resp.Conversations[0].Query)
	assert.Equal(t, "C5", resp.Conversations[1].Query)

	// 未指定窗口时使用默认值
	w = serve(mux, http.MethodGet, "/v1/memory/history?user_id=analyst", "")
	resp = decode[api.HistoryResponse](t, w).Data
	assert.Equal(t, memory.DefaultWindowSize, resp.Window)
	assert.Len(t, resp.Conversations, 3)
}

func TestMemoryHandler_HistoryUserFromContext(t *testing.T) {
	mux, mgr := newMemoryMux(t, nil)
	ctx := testutil.TestContext(t)
	require.True(t, mgr.AddConversation(ctx, "from-header", "chart", "q", "s", nil))

	r := httptest.NewRequest(http.MethodGet, "/v1/memory/history?tool=chart", nil)
	r = r.WithContext(types.WithUserID(r.Context(), "from-header"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.HistoryResponse](t, w).Data
	assert.Equal(t, "chart", resp.ToolName)
	assert.Len(t, resp.Conversations, 1)
}

func TestMemoryHandler_HistoryValidation(t *testing.T) {
	mux, _ := newMemoryMux(t, nil)

	for _, target := range []string{
		"/v1/memory/history",
		"/v1/memory/history?user_id=u&window=abc",
		"/v1/memory/history?user_id=u&window=-1",
	} {
		w := serve(mux, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestMemoryHandler_Reset(t *testing.T) {
	mux, mgr := newMemoryMux(t, nil)
	ctx := testutil.TestContext(t)
	mgr.AddConversation(ctx, "u", "", "q", "s", nil)

	w := serve(mux, http.MethodPost, "/v1/memory/reset", `{"user_id":"u"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, api.ResetMemoryResponse{UserID: "u", ToolName: memory.DefaultToolName, Reset: true},
		decode[api.ResetMemoryResponse](t, w).Data)
	assert.Empty(t, mgr.GetConversationHistory(ctx, "u", "", 3))

	w = serve(mux, http.MethodPost, "/v1/memory/reset", `{"tool_name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMemoryHandler_Stats(t *testing.T) {
	mux, mgr := newMemoryMux(t, nil)
	ctx := testutil.TestContext(t)
	mgr.AddConversation(ctx, "a", "", "q1", "s", nil)
	mgr.AddConversation(ctx, "a", "", "q2", "s", nil)
	mgr.AddConversation(ctx, "b", "", "q3", "s", nil)

	w := serve(mux, http.MethodGet, "/v1/memory/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, memory.StorageStats{TotalContexts: 2, TotalConversations: 3}, decode[memory.StorageStats](t, w).Data)
}

func TestMemoryHandler_StorageFailure(t *testing.T) {
	storage := mocks.NewMockStorage().WithUpdateError(errors.New("storage down"))
	mux, _ := newMemoryMux(t, storage)

	r := httptest.NewRequest(http.MethodPost, "/v1/memory/reset", strings.NewReader(`{"user_id":"u"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	env := decode[any](t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrStorageFailure), env.Error.Code)
	assert.True(t, env.Error.Retryable)
}
