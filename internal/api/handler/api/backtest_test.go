// internal/api/handler/api/backtest_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/macross/internal/api/job"
	"github.com/newthinker/macross/internal/api/response"
	"github.com/newthinker/macross/internal/app"
	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/strategy"
	"github.com/newthinker/macross/internal/strategy/ma_crossover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor records the requests it runs
type mockExecutor struct {
	mu   sync.Mutex
	reqs []backtest.Request
	err  error
}

func (m *mockExecutor) NewRequest(symbol string) backtest.Request {
	return backtest.Request{
		Symbol:         symbol,
		Strategy:       "ma_crossover",
		Params:         map[string]any{"fast_period": 20, "slow_period": 50, "ma_type": "sma"},
		InitialCapital: 100000,
	}
}

func (m *mockExecutor) Backtest(ctx context.Context, req backtest.Request) (*app.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &app.Execution{ArchivePath: "reports/" + req.Symbol + "/x.json"}, nil
}

func (m *mockExecutor) last() (backtest.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reqs) == 0 {
		return backtest.Request{}, false
	}
	return m.reqs[len(m.reqs)-1], true
}

func newTestHandler(exec Executor) (*BacktestHandler, *job.Store) {
	jobStore := job.NewStore(100, time.Hour)
	strategies := strategy.NewEngine()
	strategies.Register(ma_crossover.Factory)
	return NewBacktestHandler(jobStore, exec, strategies, nil), jobStore
}

func create(t *testing.T, h *BacktestHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/backtests", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Create(w, req)
	return w
}

func waitDone(t *testing.T, store *job.Store, id string) *job.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.Get(id)
		require.NoError(t, err)
		if j.Status.Done() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestBacktestHandler_Create(t *testing.T) {
	exec := &mockExecutor{}
	handler, store := newTestHandler(exec)

	w := create(t, handler, `{
		"symbol": "AAPL",
		"start": "2023-01-01",
		"end": "2024-01-01",
		"fast_period": 5,
		"slow_period": 10,
		"ma_type": "ema",
		"initial_capital": 5000
	}`)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp response.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	jobID, _ := data["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "pending", data["status"])

	j := waitDone(t, store, jobID)
	assert.Equal(t, job.StatusComplete, j.Status)
	assert.Equal(t, 100, j.Progress)

	req, ok := exec.last()
	require.True(t, ok)
	assert.Equal(t, "AAPL", req.Symbol)
	assert.Equal(t, "ma_crossover", req.Strategy)
	assert.Equal(t, 5, req.Params["fast_period"])
	assert.Equal(t, 10, req.Params["slow_period"])
	assert.Equal(t, "ema", req.Params["ma_type"])
	assert.Equal(t, 5000.0, req.InitialCapital)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), req.Start)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), req.End)
}

func TestBacktestHandler_CreateDefaults(t *testing.T) {
	exec := &mockExecutor{}
	handler, store := newTestHandler(exec)

	w := create(t, handler, `{"symbol": "SPY"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	waitDone(t, store, resp.Data.(map[string]any)["job_id"].(string))

	req, _ := exec.last()
	assert.Equal(t, 20, req.Params["fast_period"])
	assert.Equal(t, 50, req.Params["slow_period"])
	assert.Equal(t, 100000.0, req.InitialCapital)
	assert.True(t, req.Start.IsZero())
	assert.True(t, req.End.IsZero())
}

func TestBacktestHandler_CreateInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"symbol":`, "INVALID_PARAMETER"},
		{"missing symbol", `{"start": "2023-01-01"}`, "INVALID_PARAMETER"},
		{"bad start", `{"symbol": "AAPL", "start": "01/01/2023"}`, "INVALID_PARAMETER"},
		{"end before start", `{"symbol": "AAPL", "start": "2024-01-01", "end": "2023-01-01"}`, "INVALID_PARAMETER"},
		{"fast not below slow", `{"symbol": "AAPL", "fast_period": 50, "slow_period": 20}`, "INVALID_PARAMETER"},
		{"zero period", `{"symbol": "AAPL", "fast_period": 0}`, "INVALID_PARAMETER"},
		{"bad ma type", `{"symbol": "AAPL", "ma_type": "wma"}`, "INVALID_PARAMETER"},
		{"zero capital", `{"symbol": "AAPL", "initial_capital": 0}`, "INVALID_PARAMETER"},
		{"negative risk free rate", `{"symbol": "AAPL", "risk_free_rate": -0.01}`, "INVALID_PARAMETER"},
		{"unknown strategy", `{"symbol": "AAPL", "strategy": "rsi"}`, "STRATEGY_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{}
			handler, store := newTestHandler(exec)

			w := create(t, handler, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp response.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Empty(t, store.List(), "no job should be created")
		})
	}
}

func TestBacktestHandler_JobFailure(t *testing.T) {
	exec := &mockExecutor{err: core.WrapError(core.ErrNoData, nil)}
	handler, store := newTestHandler(exec)

	w := create(t, handler, `{"symbol": "NOPE"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	jobID := resp.Data.(map[string]any)["job_id"].(string)

	j := waitDone(t, store, jobID)
	assert.Equal(t, job.StatusFailed, j.Status)
	require.NotNil(t, j.Error)
	assert.Equal(t, "NO_DATA", j.Error.Code)

	req := httptest.NewRequest("GET", "/api/v1/backtests/"+jobID, nil)
	req.SetPathValue("id", jobID)
	sw := httptest.NewRecorder()
	handler.GetStatus(sw, req)

	require.Equal(t, http.StatusOK, sw.Code)
	var status response.SuccessResponse
	json.Unmarshal(sw.Body.Bytes(), &status)
	data := status.Data.(map[string]any)
	assert.Equal(t, "failed", data["status"])
	assert.Equal(t, "NO_DATA", data["error"].(map[string]any)["code"])
}

func TestBacktestHandler_GetStatus(t *testing.T) {
	handler, store := newTestHandler(&mockExecutor{})

	j := store.Create("backtest")
	store.Update(j.ID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = map[string]any{"archive_path": "reports/AAPL/x.json"}
	})

	req := httptest.NewRequest("GET", "/api/v1/backtests/"+j.ID, nil)
	req.SetPathValue("id", j.ID)
	w := httptest.NewRecorder()
	handler.GetStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "complete", data["status"])
	assert.NotNil(t, data["result"])
}

func TestBacktestHandler_GetStatus_NotFound(t *testing.T) {
	handler, _ := newTestHandler(&mockExecutor{})

	req := httptest.NewRequest("GET", "/api/v1/backtests/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	w := httptest.NewRecorder()
	handler.GetStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestJobError(t *testing.T) {
	assert.Equal(t, "TIMEOUT", jobError(context.DeadlineExceeded).Code)
	internal := jobError(assert.AnError)
	assert.Equal(t, "INTERNAL_ERROR", internal.Code)
	assert.Equal(t, "an internal error occurred", internal.Message)
	assert.NotContains(t, internal.Message, assert.AnError.Error())
	assert.Equal(t, "INVALID_DATA", jobError(core.WrapError(core.ErrInvalidData, nil)).Code)
}
