// internal/api/handler/api/runs.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/api/response"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/marketdata"
	"github.com/newthinker/macross/internal/report"
	"github.com/newthinker/macross/internal/storage/history"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// RunSource reads recorded runs and their archived reports.
type RunSource interface {
	Runs(ctx context.Context, filter history.ListFilter) ([]history.Run, error)
	GetRun(ctx context.Context, id string) (*history.Run, error)
	Report(ctx context.Context, runID string) (*report.Report, error)
}

// RunsHandler serves run history.
type RunsHandler struct {
	source RunSource
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(source RunSource) *RunsHandler {
	return &RunsHandler{source: source}
}

// List handles GET /api/v1/runs
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRunFilter(r)
	if err != nil {
		response.Fail(w, err)
		return
	}

	runs, err := h.source.Runs(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// Get handles GET /api/v1/runs/{id}
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, err := h.source.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, run)
}

// Report handles GET /api/v1/runs/{id}/report
func (h *RunsHandler) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.source.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	format := report.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		if format, err = report.ParseFormat(f); err != nil {
			response.Fail(w, err)
			return
		}
	}
	if format == report.FormatJSON {
		response.JSON(w, http.StatusOK, rep)
		return
	}

	data, err := rep.Encode(format)
	if err != nil {
		response.Fail(w, err)
		return
	}
	contentType := "text/plain; charset=utf-8"
	if format == report.FormatYAML {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func parseRunFilter(r *http.Request) (history.ListFilter, error) {
	q := r.URL.Query()
	filter := history.ListFilter{
		Symbol:   strings.ToUpper(q.Get("symbol")),
		Strategy: q.Get("strategy"),
		Limit:    defaultRunsLimit,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("limit must be a positive integer, got %q", v))
		}
		filter.Limit = min(n, maxRunsLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("offset must be a non-negative integer, got %q", v))
		}
		filter.Offset = n
	}

	var err error
	if filter.From, err = parseQueryDate(q.Get("from")); err != nil {
		return filter, err
	}
	if filter.To, err = parseQueryDate(q.Get("to")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseQueryDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(marketdata.DateLayout, v)
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrInvalidParameter, err)
	}
	return t, nil
}
