// Package session runs one actor per client connection. Each actor owns its
// connection's state, turns move events into analysis requests and delivers
// only the results that still match the position the client is looking at.
package session

import (
	"context"
	"errors"
	"sync"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/metrics"
	"chessanalysis/internal/server/processor"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrClosed is returned by Conn.Receive when the peer went away normally
var ErrClosed = errors.New("connection closed")

// Conn is one client connection. Receive is only called from a single reader
// goroutine and Send only from the session actor.
type Conn interface {
	Receive() ([]byte, error)
	Send(msg core.OutboundEnvelope) error
	Close() error
}

// Identity is the verified caller behind a connection; the zero value is anonymous
type Identity struct {
	UserID string
}

// Authenticated reports whether the identity was established upstream
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Dispatcher starts an analysis and reports its outcome asynchronously;
// *processor.Processor implements it
type Dispatcher interface {
	Dispatch(ticket processor.Ticket, done func(processor.AnalysisOutcome)) error
}

// Ledger receives analysed moves for durable history; *ledger.Writer implements it
type Ledger interface {
	Append(gameID, ownerID string, move core.Move)
}

// Config configures a Manager
type Config struct {
	Dispatcher Dispatcher
	Ledger     Ledger  // nil disables persistence
	EventRate  float64 // analyses started per second per session, 0 disables
	EventBurst int
	Logger     zerolog.Logger
}

// Manager is the table of live sessions. It never touches session state; it
// only tracks which sessions exist.
type Manager struct {
	dispatcher Dispatcher
	ledger     Ledger
	eventRate  rate.Limit
	eventBurst int
	log        zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		dispatcher: cfg.Dispatcher,
		ledger:     cfg.Ledger,
		eventRate:  rate.Limit(cfg.EventRate),
		eventBurst: cfg.EventBurst,
		log:        cfg.Logger.With().Str("component", "session").Logger(),
		sessions:   make(map[string]*session),
	}
}

// Serve runs a session on conn until the peer disconnects, a send fails or
// ctx is cancelled. conn is closed on return and the session's state is
// discarded; analyses still running for it finish and are dropped.
func (m *Manager) Serve(ctx context.Context, conn Conn, identity Identity) error {
	s := m.open(conn, identity)
	defer m.close(s)

	s.log.Info().Bool("authenticated", identity.Authenticated()).Msg("session opened")

	if err := s.send(core.MessageSession, core.SessionMessage{
		SessionID:     s.id,
		Authenticated: identity.Authenticated(),
	}); err != nil {
		return err
	}

	err := s.run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug().Err(err).Msg("session ended")
		return err
	}
	return nil
}

func (m *Manager) open(conn Conn, identity Identity) *session {
	id := uuid.New().String()

	log := m.log.With().Str("session", id).Logger()
	if identity.Authenticated() {
		log = log.With().Str("user", identity.UserID).Logger()
	}

	s := &session{
		id:          id,
		identity:    identity,
		conn:        conn,
		dispatcher:  m.dispatcher,
		ledger:      m.ledger,
		log:         log,
		correlator:  processor.NewCorrelator(),
		inbound:     make(chan []byte, inboundBuffer),
		readErr:     make(chan error, 1),
		completions: make(chan completion, completionBuffer),
		done:        make(chan struct{}),
	}

	if m.eventRate > 0 {
		s.limiter = rate.NewLimiter(m.eventRate, max(m.eventBurst, 1))
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	metrics.SessionsActive.Inc()

	return s
}

func (m *Manager) close(s *session) {
	close(s.done)
	s.conn.Close()

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	metrics.SessionsActive.Dec()

	s.log.Info().Int("analyses", s.correlator.Issued()).Msg("session closed")
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
