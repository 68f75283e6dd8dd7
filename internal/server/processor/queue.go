package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/engine"
	"chessanalysis/internal/server/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrShuttingDown is returned for work submitted to, or abandoned by, a
// queue that is shutting down
var ErrShuttingDown = errors.New("analysis queue is shutting down")

// Analyzer evaluates one position; *engine.Gateway implements it
type Analyzer interface {
	Analyze(ctx context.Context, req core.AnalysisRequest) (*core.AnalysisResult, error)
}

// AnalysisTask is one request handed to the queue
type AnalysisTask struct {
	Ticket  Ticket
	Request core.AnalysisRequest
	Done    func(AnalysisOutcome)
}

// AnalysisOutcome is the result or failure of a task, tagged with its ticket
type AnalysisOutcome struct {
	Ticket  Ticket
	Request core.AnalysisRequest
	Result  *core.AnalysisResult
	Err     error
	Elapsed time.Duration
}

// AnalysisQueue runs every task on its own goroutine. With maxConcurrent > 0
// tasks wait for a slot before their process is spawned; otherwise the
// number of concurrent engine processes is unbounded.
type AnalysisQueue struct {
	analyzer Analyzer
	slots    *semaphore.Weighted
	log      zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAnalysisQueue creates a queue in front of analyzer
func NewAnalysisQueue(analyzer Analyzer, maxConcurrent int, log zerolog.Logger) *AnalysisQueue {
	ctx, cancel := context.WithCancel(context.Background())

	q := &AnalysisQueue{
		analyzer: analyzer,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	if maxConcurrent > 0 {
		q.slots = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return q
}

// SubmitAsync starts a task without waiting for it. Done is called exactly
// once, from a queue goroutine, unless SubmitAsync returns an error.
func (q *AnalysisQueue) SubmitAsync(task AnalysisTask) error {
	if task.Done == nil {
		return fmt.Errorf("analysis task %s has no completion callback", task.Ticket.ID)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShuttingDown
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go q.run(task)
	return nil
}

// run executes a single engine analysis
func (q *AnalysisQueue) run(task AnalysisTask) {
	defer q.wg.Done()

	outcome := AnalysisOutcome{
		Ticket:  task.Ticket,
		Request: task.Request,
	}

	if q.slots != nil {
		if err := q.slots.Acquire(q.ctx, 1); err != nil {
			outcome.Err = ErrShuttingDown
			task.Done(outcome)
			return
		}
		defer q.slots.Release(1)
	}

	metrics.AnalysesInFlight.Inc()
	start := time.Now()
	outcome.Result, outcome.Err = q.analyzer.Analyze(q.ctx, task.Request)
	outcome.Elapsed = time.Since(start)
	metrics.AnalysesInFlight.Dec()

	q.record(outcome)
	task.Done(outcome)
}

func (q *AnalysisQueue) record(outcome AnalysisOutcome) {
	metrics.AnalysisDuration.Observe(outcome.Elapsed.Seconds())

	label := metrics.OutcomeSuccess
	if outcome.Err != nil {
		switch engine.FailureKind(outcome.Err) {
		case engine.KindTimeout:
			label = metrics.OutcomeTimeout
		case engine.KindProcess:
			label = metrics.OutcomeProcess
		case engine.KindMalformed:
			label = metrics.OutcomeMalformed
		default:
			label = metrics.OutcomeCancelled
		}
	}
	metrics.AnalysesTotal.WithLabelValues(label).Inc()

	evt := q.log.Debug()
	if outcome.Err != nil {
		evt = q.log.Warn().Err(outcome.Err)
	}
	evt.Str("ticket", outcome.Ticket.ID).
		Str("fen", outcome.Request.Fingerprint).
		Str("outcome", label).
		Dur("elapsed", outcome.Elapsed).
		Msg("analysis finished")
}

// Shutdown stops accepting tasks, kills running engine processes and waits
// for their callbacks to return
func (q *AnalysisQueue) Shutdown(timeout time.Duration) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
