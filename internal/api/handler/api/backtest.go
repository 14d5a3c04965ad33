// internal/api/handler/api/backtest.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/api/job"
	"github.com/newthinker/macross/internal/api/response"
	"github.com/newthinker/macross/internal/app"
	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/marketdata"
	"github.com/newthinker/macross/internal/strategy"
	"go.uber.org/zap"
)

const (
	backtestTimeout = 5 * time.Minute
	jobTypeBacktest = "backtest"
)

// Executor runs and persists backtests.
type Executor interface {
	NewRequest(symbol string) backtest.Request
	Backtest(ctx context.Context, req backtest.Request) (*app.Execution, error)
}

// BacktestRequest is the request body for starting a backtest. Omitted
// fields fall back to the configured defaults.
type BacktestRequest struct {
	Symbol         string         `json:"symbol"`
	Strategy       string         `json:"strategy,omitempty"`
	Start          string         `json:"start,omitempty"`
	End            string         `json:"end,omitempty"`
	FastPeriod     *int           `json:"fast_period,omitempty"`
	SlowPeriod     *int           `json:"slow_period,omitempty"`
	MAType         string         `json:"ma_type,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	InitialCapital *float64       `json:"initial_capital,omitempty"`
	RiskFreeRate   *float64       `json:"risk_free_rate,omitempty"`
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobStore   *job.Store
	executor   Executor
	strategies *strategy.Engine
	logger     *zap.Logger
	timeout    time.Duration
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(
	jobStore *job.Store,
	executor Executor,
	strategies *strategy.Engine,
	logger *zap.Logger,
) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{
		jobStore:   jobStore,
		executor:   executor,
		strategies: strategies,
		logger:     logger,
		timeout:    backtestTimeout,
	}
}

// Create validates the request and starts a backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrInvalidParameter, fmt.Errorf("decoding body: %w", err)))
		return
	}

	req, err := h.buildRequest(body)
	if err != nil {
		response.Fail(w, err)
		return
	}

	// Reject bad parameters before a job exists
	if _, err := h.strategies.Build(req.Strategy, strategy.Config{Params: req.Params}); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	j := h.jobStore.Create(jobTypeBacktest)

	// Copy values before starting goroutine to avoid race
	jobID := j.ID
	status := j.Status

	go h.runBacktest(jobID, req)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

func (h *BacktestHandler) buildRequest(body BacktestRequest) (backtest.Request, error) {
	symbol := strings.TrimSpace(body.Symbol)
	if symbol == "" {
		return backtest.Request{}, core.WrapError(core.ErrInvalidParameter, errors.New("symbol is required"))
	}
	req := h.executor.NewRequest(symbol)

	if body.Strategy != "" {
		req.Strategy = body.Strategy
	}

	params := make(map[string]any, len(req.Params)+len(body.Params))
	for k, v := range req.Params {
		params[k] = v
	}
	for k, v := range body.Params {
		params[k] = v
	}
	if body.FastPeriod != nil {
		params["fast_period"] = *body.FastPeriod
	}
	if body.SlowPeriod != nil {
		params["slow_period"] = *body.SlowPeriod
	}
	if body.MAType != "" {
		params["ma_type"] = body.MAType
	}
	req.Params = params

	var err error
	if req.Start, err = parseDate("start", body.Start); err != nil {
		return backtest.Request{}, err
	}
	if req.End, err = parseDate("end", body.End); err != nil {
		return backtest.Request{}, err
	}
	if !req.End.IsZero() && req.End.Before(req.Start) {
		return backtest.Request{}, core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("end %s is before start %s", body.End, body.Start))
	}

	if body.InitialCapital != nil {
		if *body.InitialCapital <= 0 {
			return backtest.Request{}, core.WrapError(core.ErrInvalidParameter,
				fmt.Errorf("initial_capital must be positive, got %v", *body.InitialCapital))
		}
		req.InitialCapital = *body.InitialCapital
	}
	if body.RiskFreeRate != nil {
		if *body.RiskFreeRate < 0 {
			return backtest.Request{}, core.WrapError(core.ErrInvalidParameter,
				fmt.Errorf("risk_free_rate must not be negative, got %v", *body.RiskFreeRate))
		}
		req.RiskFreeRate = *body.RiskFreeRate
	}
	return req, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(marketdata.DateLayout, value)
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("%s: %w", field, err))
	}
	return t, nil
}

// runBacktest executes the backtest and updates job status.
func (h *BacktestHandler) runBacktest(jobID string, req backtest.Request) {
	// Mark as running
	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	exec, err := h.executor.Backtest(ctx, req)

	if err != nil {
		h.logger.Warn("backtest job failed",
			zap.String("job_id", jobID),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		h.jobStore.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = jobError(err)
		})
		return
	}

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = exec
	})
}

func jobError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{Code: "TIMEOUT", Message: "backtest timed out"}
	}
	return &core.Error{Code: "INTERNAL_ERROR", Message: "an internal error occurred"}
}

// GetStatus returns the status of a backtest job.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobStore.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	resp := map[string]any{
		"job_id":   j.ID,
		"status":   j.Status,
		"progress": j.Progress,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Error(),
		}
	}

	response.JSON(w, http.StatusOK, resp)
}
