// Package batch tracks which sheets belong to an upload batch and derives
// batch-level statistics from their current state.
package batch

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/omr-scan/internal/lifecycle"
)

// Summary is the derived, on-demand view of one batch. It is recomputed from
// the owned sheet results on every call and never independently mutated.
type Summary struct {
	BatchCode   string `json:"batch_code"`
	TotalSheets int    `json:"total_sheets"`

	Pending      int `json:"pending"`
	Processing   int `json:"processing"`
	Processed    int `json:"processed"`
	ReviewNeeded int `json:"review_needed"`
	Failed       int `json:"failed"`

	// AverageScore is the mean overall score over sheets in processed or
	// review_needed status (both carry a computed score). Failed sheets
	// count toward totals but not toward the average.
	AverageScore float64 `json:"average_score"`

	// ScoreStdDev is the sample standard deviation of the same scores;
	// zero with fewer than two scored sheets.
	ScoreStdDev float64 `json:"score_std_dev"`

	// AveragePercent re-expresses AverageScore against each sheet's rating
	// scale (score/K*100), for the percentage views reviewers work with.
	AveragePercent float64 `json:"average_percent"`

	// Complete is true iff no sheet remains pending or processing.
	Complete bool `json:"complete"`
}

// Coordinator owns the batch → sheet mapping. Sheet state itself lives in
// the lifecycle controller; the coordinator only reads it.
type Coordinator struct {
	ctrl *lifecycle.Controller

	mu      sync.RWMutex
	batches map[string][]string // batch code → sheet ids, in attach order
}

// NewCoordinator returns a coordinator reading sheet state from ctrl.
func NewCoordinator(ctrl *lifecycle.Controller) *Coordinator {
	return &Coordinator{
		ctrl:    ctrl,
		batches: make(map[string][]string),
	}
}

// Attach records that a sheet belongs to a batch.
func (c *Coordinator) Attach(batchCode, sheetID string) {
	c.mu.Lock()
	c.batches[batchCode] = append(c.batches[batchCode], sheetID)
	c.mu.Unlock()
}

// Sheets returns copies of the current results of every sheet in the batch,
// in attach order.
func (c *Coordinator) Sheets(batchCode string) []lifecycle.SheetResult {
	c.mu.RLock()
	ids := append([]string(nil), c.batches[batchCode]...)
	c.mu.RUnlock()

	out := make([]lifecycle.SheetResult, 0, len(ids))
	for _, id := range ids {
		if sheet, ok := c.ctrl.Get(id); ok {
			out = append(out, sheet)
		}
	}
	return out
}

// Summarize computes the batch summary from the sheets' current statuses.
// It reads live state on every call — never a cached snapshot — and never
// fails because individual sheets failed; an unknown batch code simply
// yields an empty, complete summary.
func (c *Coordinator) Summarize(batchCode string) Summary {
	sheets := c.Sheets(batchCode)

	sum := Summary{BatchCode: batchCode, TotalSheets: len(sheets)}
	var scores, percents []float64

	for _, s := range sheets {
		switch s.Status {
		case lifecycle.StatusPending:
			sum.Pending++
		case lifecycle.StatusProcessing:
			sum.Processing++
		case lifecycle.StatusProcessed:
			sum.Processed++
		case lifecycle.StatusReviewNeeded:
			sum.ReviewNeeded++
		case lifecycle.StatusFailed:
			sum.Failed++
		}
		if s.Status == lifecycle.StatusProcessed || s.Status == lifecycle.StatusReviewNeeded {
			scores = append(scores, s.OverallScore)
			if s.RatingScale > 0 {
				percents = append(percents, s.OverallScore/float64(s.RatingScale)*100)
			}
		}
	}

	if len(scores) > 0 {
		sum.AverageScore = stat.Mean(scores, nil)
	}
	if len(scores) > 1 {
		sum.ScoreStdDev = stat.StdDev(scores, nil)
	}
	if len(percents) > 0 {
		sum.AveragePercent = stat.Mean(percents, nil)
	}
	sum.Complete = sum.Pending == 0 && sum.Processing == 0
	return sum
}
