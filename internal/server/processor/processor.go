// Package processor sits between sessions and the engine gateway: it checks
// positions, dispatches analyses asynchronously and decides which results
// are still worth delivering.
package processor

import (
	"fmt"
	"regexp"
	"time"
	"unicode"

	"chessanalysis/internal/server/core"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"
)

// FEN validation regex
var fenPattern = regexp.MustCompile(`^[rnbqkpRNBQKP1-8/]+ [wb] [KQkq-]+ [a-h1-8-]+ \d+ \d+$`)

// Config configures a Processor
type Config struct {
	Analyzer      Analyzer
	Depth         int
	MaxConcurrent int
	Logger        zerolog.Logger
}

// Processor validates positions and hands analyses to the queue
type Processor struct {
	queue *AnalysisQueue
	depth int
	log   zerolog.Logger
}

// New creates a processor in front of cfg.Analyzer
func New(cfg Config) (*Processor, error) {
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer required")
	}
	if cfg.Depth < 1 {
		return nil, fmt.Errorf("analysis depth must be at least 1, got %d", cfg.Depth)
	}

	log := cfg.Logger.With().Str("component", "processor").Logger()
	return &Processor{
		queue: NewAnalysisQueue(cfg.Analyzer, cfg.MaxConcurrent, log),
		depth: cfg.Depth,
		log:   log,
	}, nil
}

// Depth returns the search depth requested for every analysis
func (p *Processor) Depth() int {
	return p.depth
}

// Dispatch starts the analysis for ticket's position; done receives the
// outcome from another goroutine
func (p *Processor) Dispatch(ticket Ticket, done func(AnalysisOutcome)) error {
	return p.queue.SubmitAsync(AnalysisTask{
		Ticket: ticket,
		Request: core.AnalysisRequest{
			Fingerprint: ticket.Fingerprint,
			Depth:       p.depth,
		},
		Done: done,
	})
}

// ValidateFEN rejects control characters, anything outside the FEN grammar,
// and positions the chess library cannot load. The string reaches the engine
// as a process argument, so nothing unchecked gets through.
func ValidateFEN(fen string) error {
	for _, r := range fen {
		if unicode.IsControl(r) {
			return fmt.Errorf("invalid FEN: control characters not allowed")
		}
	}

	if !fenPattern.MatchString(fen) {
		return fmt.Errorf("invalid FEN format")
	}

	if _, err := chess.FEN(fen); err != nil {
		return fmt.Errorf("invalid FEN: %w", err)
	}

	return nil
}

// Close stops dispatching and waits for running analyses to be killed
func (p *Processor) Close(timeout time.Duration) error {
	return p.queue.Shutdown(timeout)
}
