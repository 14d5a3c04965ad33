package report

import "github.com/newthinker/macross/internal/storage/history"

// HistoryRun summarizes r as a run history row pointing at its archive path
func (r *Report) HistoryRun(archivePath string) history.Run {
	return history.Run{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		Symbol:         r.Symbol,
		Strategy:       r.Strategy,
		Params:         r.Params,
		Start:          r.Start,
		End:            r.End,
		Bars:           r.Bars,
		InitialCapital: r.InitialCapital,
		Metrics:        r.Metrics,
		ReportPath:     archivePath,
	}
}
