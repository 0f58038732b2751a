// Package pipeline runs the per-sheet processing stages on a worker pool.
//
// Submit is fire-and-forget: it registers the sheet, hands the work to a
// worker and returns immediately. Each sheet's stages — load, preprocess,
// detect, aggregate, transition — run strictly in sequence inside one
// worker; there is no ordering across sheets. A sheet that has begun
// processing always reaches a terminal state, even if the submitter has
// stopped caring: stage errors are captured into the sheet's failed status,
// never surfaced to the submitter.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/omr-scan/internal/aggregate"
	"github.com/ironsheep/omr-scan/internal/batch"
	"github.com/ironsheep/omr-scan/internal/config"
	"github.com/ironsheep/omr-scan/internal/detect"
	"github.com/ironsheep/omr-scan/internal/imaging"
	"github.com/ironsheep/omr-scan/internal/lifecycle"
	"github.com/ironsheep/omr-scan/internal/template"
)

// Job describes one sheet to process. Label is optional free-form sheet
// metadata (e.g. subject and teacher) carried through to the result.
type Job struct {
	BatchCode string
	Label     string
	ImagePath string
	Template  *template.Template
}

// Sink receives terminal sheet results for persistence. Implementations
// must treat saves as idempotent upserts keyed by sheet id.
type Sink interface {
	SaveSheet(lifecycle.SheetResult) error
}

type queued struct {
	sheetID string
	job     Job
}

// Runner dispatches sheet jobs onto a fixed pool of workers.
//
// The queue is unbounded: enqueueing only appends under the lock, so Submit
// returns without waiting for a worker slot even when every worker is busy.
type Runner struct {
	cfg   config.Config
	cache *imaging.Cache
	ctrl  *lifecycle.Controller
	coord *batch.Coordinator
	sink  Sink // optional
	log   *slog.Logger

	wg sync.WaitGroup

	mu      sync.Mutex
	cond    *sync.Cond
	pending []queued
	closed  bool
}

// NewRunner starts cfg.Workers workers. sink may be nil; log may be nil for
// the default logger.
func NewRunner(cfg config.Config, cache *imaging.Cache, ctrl *lifecycle.Controller, coord *batch.Coordinator, sink Sink, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	r := &Runner{
		cfg:   cfg,
		cache: cache,
		ctrl:  ctrl,
		coord: coord,
		sink:  sink,
		log:   log,
	}
	r.cond = sync.NewCond(&r.mu)
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Submit registers a new sheet under the job's batch and enqueues it,
// returning the minted sheet id without waiting for processing. The caller
// needs the id only for later lookups; correctness never requires awaiting
// completion.
func (r *Runner) Submit(job Job) (string, error) {
	sheetID := uuid.NewString()
	if err := r.ctrl.Register(sheetID, job.BatchCode, job.Label, job.Template.ID, job.Template.Version); err != nil {
		return "", err
	}
	r.coord.Attach(job.BatchCode, sheetID)
	if err := r.enqueue(queued{sheetID: sheetID, job: job}); err != nil {
		return "", err
	}
	return sheetID, nil
}

// Resubmit re-enqueues an existing sheet, e.g. after a reviewer requests a
// rerun. A sheet already in a terminal status is rejected with
// *lifecycle.AlreadyProcessedError before any work is queued, leaving the
// stored result untouched.
func (r *Runner) Resubmit(sheetID string, job Job) error {
	sheet, ok := r.ctrl.Get(sheetID)
	if !ok {
		return fmt.Errorf("unknown sheet %s", sheetID)
	}
	if sheet.Status.Terminal() {
		return &lifecycle.AlreadyProcessedError{SheetID: sheetID, Status: sheet.Status}
	}
	return r.enqueue(queued{sheetID: sheetID, job: job})
}

// Close stops accepting work and blocks until queued sheets reach terminal
// states. In-flight sheets are never cancelled.
func (r *Runner) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		r.cond.Broadcast()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) enqueue(q queued) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("runner is closed")
	}
	r.pending = append(r.pending, q)
	r.cond.Signal()
	return nil
}

// next blocks until a job is available or the runner is closed and drained.
func (r *Runner) next() (queued, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.pending) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.pending) == 0 {
		return queued{}, false
	}
	q := r.pending[0]
	r.pending = r.pending[1:]
	return q, true
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		q, ok := r.next()
		if !ok {
			return
		}
		r.process(q)
	}
}

// process runs one sheet to a terminal state. Every stage error is converted
// into the failed status here; nothing escapes to the batch coordinator.
func (r *Runner) process(q queued) {
	start := time.Now()

	if err := r.ctrl.Begin(q.sheetID); err != nil {
		// Terminal or double-dispatched sheet; the stored result wins.
		r.log.Warn("sheet not accepted for processing", "sheet", q.sheetID, "error", err)
		return
	}

	status := r.run(q, start)
	r.log.Info("sheet finished",
		"sheet", q.sheetID,
		"batch", q.job.BatchCode,
		"status", status,
		"elapsed", time.Since(start))

	if r.sink != nil {
		if sheet, ok := r.ctrl.Get(q.sheetID); ok {
			if err := r.sink.SaveSheet(sheet); err != nil {
				r.log.Error("failed to persist sheet result", "sheet", q.sheetID, "error", err)
			}
		}
	}
}

func (r *Runner) run(q queued, start time.Time) lifecycle.Status {
	fail := func(cause error) lifecycle.Status {
		if err := r.ctrl.Fail(q.sheetID, cause, time.Since(start)); err != nil {
			r.log.Error("failed to record sheet failure", "sheet", q.sheetID, "error", err)
		}
		return lifecycle.StatusFailed
	}

	img, err := r.cache.Load(q.job.ImagePath)
	if err != nil {
		return fail(err)
	}

	pre, err := imaging.Preprocess(img, r.cfg.ContrastFactor)
	if err != nil {
		return fail(err)
	}

	samples, err := detect.Detect(pre, q.job.Template, r.cfg.DarkPixelThreshold)
	if err != nil {
		return fail(err)
	}

	res := aggregate.Aggregate(samples, q.job.Template, r.cfg)
	quality := imaging.QualityScore(pre)

	status, err := r.ctrl.Complete(q.sheetID, res, quality, time.Since(start))
	if err != nil {
		return fail(err)
	}
	return status
}
