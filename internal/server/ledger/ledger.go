// Package ledger appends analysed moves to durable game history. Appends are
// fire-and-forget: the caller never waits and never sees an error.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/metrics"
	"chessanalysis/internal/server/storage"

	"github.com/rs/zerolog"
)

// Sink is the durable store behind the writer; *storage.Store implements it.
// done runs once the write is applied or rejected, and is not called when
// AppendMove returns an error.
type Sink interface {
	AppendMove(ownerID string, record storage.MoveRecord, done func(error)) error
}

// Writer hands moves to a Sink and reports failures only to logs and metrics
type Writer struct {
	sink Sink
	log  zerolog.Logger

	// pending counts appends handed to the sink whose outcome is not known yet
	pending sync.WaitGroup
}

// NewWriter creates a writer; a nil sink disables persistence
func NewWriter(sink Sink, log zerolog.Logger) *Writer {
	return &Writer{
		sink: sink,
		log:  log.With().Str("component", "ledger").Logger(),
	}
}

// Enabled reports whether appends reach a store
func (w *Writer) Enabled() bool {
	return w != nil && w.sink != nil
}

// Append records move in gameID's history on behalf of ownerID. It returns
// immediately; nothing that goes wrong here reaches the caller.
func (w *Writer) Append(gameID, ownerID string, move core.Move) {
	if !w.Enabled() {
		return
	}

	log := w.log.With().Str("game", gameID).Str("owner", ownerID).Int64("seq", move.Sequence).Logger()

	record := storage.MoveRecord{
		GameID:      gameID,
		FromSquare:  move.From,
		ToSquare:    move.To,
		FEN:         move.Fingerprint,
		Evaluation:  move.Evaluation,
		SessionSeq:  move.Sequence,
		SubmittedAt: move.SubmittedAt,
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now()
	}

	w.pending.Add(1)
	err := w.handOff(ownerID, record, func(err error) {
		defer w.pending.Done()
		w.report(log, err)
	})
	if err != nil {
		w.pending.Done()
		metrics.LedgerAppendsTotal.WithLabelValues(metrics.LedgerDropped).Inc()
		log.Warn().Err(err).Msg("ledger append dropped")
	}
}

// handOff calls the sink, turning a panic into an error
func (w *Writer) handOff(ownerID string, record storage.MoveRecord, done func(error)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger sink panicked: %v", r)
		}
	}()
	return w.sink.AppendMove(ownerID, record, done)
}

func (w *Writer) report(log zerolog.Logger, err error) {
	switch {
	case err == nil:
		metrics.LedgerAppendsTotal.WithLabelValues(metrics.LedgerStored).Inc()
		log.Debug().Msg("move appended")
	case errors.Is(err, storage.ErrNotOwner):
		metrics.LedgerAppendsTotal.WithLabelValues(metrics.LedgerRejected).Inc()
		log.Warn().Err(err).Msg("ledger append rejected")
	default:
		metrics.LedgerAppendsTotal.WithLabelValues(metrics.LedgerFailed).Inc()
		log.Warn().Err(err).Msg("ledger append failed")
	}
}

// Wait blocks until every accepted append has an outcome or timeout expires
func (w *Writer) Wait(timeout time.Duration) error {
	if !w.Enabled() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("ledger appends still pending after %s", timeout)
	}
}
