package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/engine"
	"chessanalysis/internal/server/metrics"
	"chessanalysis/internal/server/processor"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	inboundBuffer    = 16
	completionBuffer = 16
)

// State is everything the server remembers about one live connection
type State struct {
	CurrentFingerprint string
	GameID             string
	PendingRequestID   string
}

// completion carries a finished analysis back to the session that asked
type completion struct {
	outcome processor.AnalysisOutcome
	move    json.RawMessage
}

// session is an actor: run owns state and the outbound side of conn, so no
// field below is touched concurrently
type session struct {
	id         string
	identity   Identity
	conn       Conn
	dispatcher Dispatcher
	ledger     Ledger
	limiter    *rate.Limiter // nil when unlimited
	log        zerolog.Logger

	state      State
	correlator *processor.Correlator
	seq        int64

	inbound     chan []byte
	readErr     chan error
	completions chan completion
	done        chan struct{}
}

func (s *session) run(ctx context.Context) error {
	go s.readLoop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-s.readErr:
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err

		case raw := <-s.inbound:
			if err := s.handle(raw); err != nil {
				return err
			}

		case c := <-s.completions:
			if err := s.deliver(c); err != nil {
				return err
			}
		}
	}
}

// readLoop feeds inbound frames to run until the connection fails
func (s *session) readLoop() {
	for {
		raw, err := s.conn.Receive()
		if err != nil {
			select {
			case s.readErr <- err:
			case <-s.done:
			}
			return
		}

		select {
		case s.inbound <- raw:
		case <-s.done:
			return
		}
	}
}

// handle processes one client event. Only a failed send ends the session.
func (s *session) handle(raw []byte) error {
	var env core.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return s.sendError("invalid message format")
	}

	switch env.Type {
	case core.EventMove:
		return s.handleMove(env.Data)
	default:
		return s.sendError(fmt.Sprintf("unknown event type: %q", env.Type))
	}
}

func (s *session) handleMove(data json.RawMessage) error {
	var ev core.MoveEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return s.sendError("invalid move event")
	}

	// The client is at this position now, even if the event is rejected
	// below, so analysis still running for an earlier one is stale.
	if ev.FEN != "" {
		s.state.CurrentFingerprint = ev.FEN
		s.state.PendingRequestID = ""
	}

	if err := core.Validate(ev); err != nil {
		return s.sendError("invalid move event: " + core.ValidationDetails(err))
	}

	var squares core.MoveSquares
	if err := json.Unmarshal(ev.Move, &squares); err != nil {
		return s.sendError("invalid move: expected an object with from and to")
	}
	if err := core.Validate(squares); err != nil {
		return s.sendError("invalid move: " + core.ValidationDetails(err))
	}

	if err := processor.ValidateFEN(ev.FEN); err != nil {
		return s.sendError(err.Error())
	}

	if ev.GameID != "" {
		s.state.GameID = ev.GameID
	}
	s.seq++

	// Throttling only skips the engine; the position above is already current
	if s.limiter != nil && !s.limiter.Allow() {
		metrics.EventsRejectedTotal.Inc()
		return s.sendError("rate limit exceeded, slow down")
	}

	ticket := s.correlator.Issue(ev.FEN)
	s.state.PendingRequestID = ticket.ID

	move := core.Move{
		From:        squares.From,
		To:          squares.To,
		Fingerprint: ev.FEN,
		Sequence:    s.seq,
		SubmittedAt: time.Now(),
	}
	echo := ev.Move
	gameID := ev.GameID

	s.log.Debug().
		Str("ticket", ticket.ID).
		Str("fen", ev.FEN).
		Str("game", gameID).
		Int64("seq", move.Sequence).
		Msg("analysis requested")

	err := s.dispatcher.Dispatch(ticket, func(outcome processor.AnalysisOutcome) {
		if outcome.Err == nil {
			s.record(gameID, move, outcome.Result)
		}

		select {
		case s.completions <- completion{outcome: outcome, move: echo}:
		case <-s.done:
			metrics.DeliveriesTotal.WithLabelValues(metrics.DeliveryClosed).Inc()
			s.log.Debug().Str("ticket", outcome.Ticket.ID).Msg("session closed, result dropped")
		}
	})
	if err != nil {
		s.correlator.Resolve(ticket, s.state.CurrentFingerprint)
		s.state.PendingRequestID = ""
		s.log.Warn().Err(err).Str("ticket", ticket.ID).Msg("analysis dispatch failed")
		return s.sendError("analysis unavailable: " + err.Error())
	}

	return nil
}

// record hands an analysed move to the ledger. It runs on the analysis
// goroutine and only touches values captured when the event was accepted.
func (s *session) record(gameID string, move core.Move, result *core.AnalysisResult) {
	if gameID == "" || s.ledger == nil {
		return
	}
	if !s.identity.Authenticated() {
		s.log.Debug().Str("game", gameID).Msg("anonymous session, move not persisted")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("game", gameID).Msg("ledger append panicked")
		}
	}()

	move.Evaluation = result.Evaluation
	s.ledger.Append(gameID, s.identity.UserID, move)
}

// deliver decides what the client hears about a finished analysis
func (s *session) deliver(c completion) error {
	outcome := c.outcome
	current := s.correlator.Resolve(outcome.Ticket, s.state.CurrentFingerprint)
	if s.state.PendingRequestID == outcome.Ticket.ID {
		s.state.PendingRequestID = ""
	}

	// Failures always surface; the fen lets a client that moved on ignore them
	if outcome.Err != nil {
		return s.send(core.MessageError, core.ErrorMessage{
			Message: failureMessage(outcome.Err),
			FEN:     outcome.Ticket.Fingerprint,
		})
	}

	if !current {
		metrics.DeliveriesTotal.WithLabelValues(metrics.DeliveryStale).Inc()
		s.log.Debug().
			Str("ticket", outcome.Ticket.ID).
			Str("result_fen", outcome.Result.Fingerprint).
			Str("live_fen", s.state.CurrentFingerprint).
			Msg("stale analysis dropped")
		return nil
	}

	metrics.DeliveriesTotal.WithLabelValues(metrics.DeliveryDelivered).Inc()
	return s.send(core.MessageAnalysis, core.AnalysisMessage{
		FEN:      outcome.Result.Fingerprint,
		Analysis: core.NewAnalysisPayload(outcome.Result),
		Move:     c.move,
	})
}

// failureMessage is the client-facing text for a failed analysis
func failureMessage(err error) string {
	switch {
	case engine.FailureKind(err) != 0:
		return err.Error()
	case errors.Is(err, processor.ErrShuttingDown), errors.Is(err, context.Canceled):
		return "analysis cancelled: server shutting down"
	default:
		return "analysis failed: " + err.Error()
	}
}

func (s *session) sendError(message string) error {
	return s.send(core.MessageError, core.ErrorMessage{Message: message})
}

func (s *session) send(msgType string, data any) error {
	if err := s.conn.Send(core.OutboundEnvelope{Type: msgType, Data: data}); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}
