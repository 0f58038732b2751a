// Package lifecycle owns per-sheet status and the transitions between
// statuses.
//
// Every sheet moves pending → processing → one of processed, review_needed
// or failed. Terminal states absorb: once a sheet is terminal its result is
// never rewritten by the pipeline (reviewers may override status out of
// band, but that is an administrative mutation, not a transition).
package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/ironsheep/omr-scan/internal/aggregate"
)

// Status is a sheet's position in the processing lifecycle.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusProcessed    Status = "processed"
	StatusReviewNeeded Status = "review_needed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusProcessed, StatusReviewNeeded, StatusFailed:
		return true
	}
	return false
}

// AlreadyProcessedError rejects a reprocessing request for a sheet that has
// reached a terminal status. The stored result is left untouched.
type AlreadyProcessedError struct {
	SheetID string
	Status  Status
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("sheet %s already %s", e.SheetID, e.Status)
}

// SheetResult is the full record of one sheet's processing outcome.
//
// A result is owned by the Controller once registered and mutated only
// through transitions; the aggregator never edits it retroactively. The
// template id and version are recorded so the result stays reproducible
// after the template author publishes a newer version.
type SheetResult struct {
	SheetID              string               `json:"sheet_id"`
	BatchCode            string               `json:"batch_code"`
	Label                string               `json:"label,omitempty"`
	TemplateID           string               `json:"template_id"`
	TemplateVersion      string               `json:"template_version"`
	Responses            []aggregate.Response `json:"responses"`
	OverallScore         float64              `json:"overall_score"`
	OverallConfidence    float64              `json:"overall_confidence"`
	RatingScale          int                  `json:"rating_scale"`
	Status               Status               `json:"status"`
	ImageQualityScore    float64              `json:"image_quality_score"`
	ProcessingDurationMs int64                `json:"processing_duration_ms"`
	FailureReason        string               `json:"failure_reason,omitempty"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty"`
}

// Controller is the per-process registry of sheet results and the only
// writer of their status fields.
//
// Each sheet's terminal status is written exactly once, by the single
// pipeline invocation that owns the sheet; the controller's lock exists for
// the cross-sheet map, not for contended per-sheet state.
type Controller struct {
	confidenceThreshold float64

	mu     sync.RWMutex
	sheets map[string]*SheetResult

	now func() time.Time // injectable for tests
}

// NewController returns a controller that routes completed sheets to
// processed or review_needed at the given confidence threshold.
func NewController(confidenceThreshold float64) *Controller {
	return &Controller{
		confidenceThreshold: confidenceThreshold,
		sheets:              make(map[string]*SheetResult),
		now:                 time.Now,
	}
}

// Register creates a pending result for a new sheet. Registering an id that
// already exists is an error; sheet ownership is 1:1 with registration.
//
// label is free-form metadata supplied by the upload layer (subject and
// teacher of a feedback form, say); it rides along unchanged and may be
// empty.
func (c *Controller) Register(sheetID, batchCode, label, templateID, templateVersion string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sheets[sheetID]; exists {
		return fmt.Errorf("sheet %s already registered", sheetID)
	}
	c.sheets[sheetID] = &SheetResult{
		SheetID:         sheetID,
		BatchCode:       batchCode,
		Label:           label,
		TemplateID:      templateID,
		TemplateVersion: templateVersion,
		Status:          StatusPending,
	}
	return nil
}

// Begin moves a sheet from pending to processing.
//
// A sheet already in a terminal status is rejected with
// *AlreadyProcessedError and its stored result is preserved, so resubmitting
// a finished sheet can never double-count in batch statistics.
func (c *Controller) Begin(sheetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sheet, ok := c.sheets[sheetID]
	if !ok {
		return fmt.Errorf("unknown sheet %s", sheetID)
	}
	if sheet.Status.Terminal() {
		return &AlreadyProcessedError{SheetID: sheetID, Status: sheet.Status}
	}
	if sheet.Status == StatusProcessing {
		return fmt.Errorf("sheet %s is already processing", sheetID)
	}
	sheet.Status = StatusProcessing
	return nil
}

// Complete records an aggregation result and moves the sheet to processed or
// review_needed depending on the confidence threshold. Returns the terminal
// status reached.
func (c *Controller) Complete(sheetID string, res aggregate.Result, quality float64, elapsed time.Duration) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sheet, ok := c.sheets[sheetID]
	if !ok {
		return "", fmt.Errorf("unknown sheet %s", sheetID)
	}
	if sheet.Status.Terminal() {
		return "", &AlreadyProcessedError{SheetID: sheetID, Status: sheet.Status}
	}
	if sheet.Status != StatusProcessing {
		return "", fmt.Errorf("sheet %s is %s, not processing", sheetID, sheet.Status)
	}

	sheet.Responses = res.Responses
	sheet.OverallScore = res.OverallScore
	sheet.OverallConfidence = res.OverallConfidence
	sheet.RatingScale = res.RatingScale
	sheet.ImageQualityScore = quality
	sheet.ProcessingDurationMs = elapsed.Milliseconds()

	if res.OverallConfidence >= c.confidenceThreshold {
		sheet.Status = StatusProcessed
	} else {
		sheet.Status = StatusReviewNeeded
	}
	completed := c.now()
	sheet.CompletedAt = &completed
	return sheet.Status, nil
}

// Fail moves the sheet to failed, recording the cause and elapsed time.
// Any pipeline-stage error lands here; nothing propagates past the
// controller boundary.
func (c *Controller) Fail(sheetID string, cause error, elapsed time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sheet, ok := c.sheets[sheetID]
	if !ok {
		return fmt.Errorf("unknown sheet %s", sheetID)
	}
	if sheet.Status.Terminal() {
		return &AlreadyProcessedError{SheetID: sheetID, Status: sheet.Status}
	}
	sheet.Status = StatusFailed
	if cause != nil {
		sheet.FailureReason = cause.Error()
	}
	sheet.ProcessingDurationMs = elapsed.Milliseconds()
	return nil
}

// Get returns a copy of the sheet's current result.
func (c *Controller) Get(sheetID string) (SheetResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sheet, ok := c.sheets[sheetID]
	if !ok {
		return SheetResult{}, false
	}
	return *sheet, true
}
