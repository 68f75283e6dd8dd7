package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/engine"
	"chessanalysis/internal/server/processor"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fen0 = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	fen1 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	fen2 = "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2"
)

// fakeConn is an in-memory client connection
type fakeConn struct {
	in     chan []byte
	out    chan core.OutboundEnvelope
	closed chan struct{}
	once   sync.Once

	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan core.OutboundEnvelope, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case raw := <-c.in:
		return raw, nil
	case <-c.closed:
		return nil, ErrClosed
	}
}

func (c *fakeConn) Send(msg core.OutboundEnvelope) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.out <- msg
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// hangUp simulates the client going away
func (c *fakeConn) hangUp() {
	c.Close()
}

func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- raw
}

func (c *fakeConn) next(t *testing.T) core.OutboundEnvelope {
	t.Helper()
	select {
	case msg := <-c.out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message from session")
		return core.OutboundEnvelope{}
	}
}

func (c *fakeConn) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-c.out:
		t.Fatalf("unexpected message %s: %+v", msg.Type, msg.Data)
	case <-time.After(d):
	}
}

// dispatched is one analysis the fake dispatcher is holding
type dispatched struct {
	ticket processor.Ticket
	done   func(processor.AnalysisOutcome)
}

func (d dispatched) succeed(result core.AnalysisResult) {
	result.Fingerprint = d.ticket.Fingerprint
	d.done(processor.AnalysisOutcome{
		Ticket:  d.ticket,
		Request: core.AnalysisRequest{Fingerprint: d.ticket.Fingerprint, Depth: 3},
		Result:  &result,
	})
}

func (d dispatched) fail(err error) {
	d.done(processor.AnalysisOutcome{
		Ticket:  d.ticket,
		Request: core.AnalysisRequest{Fingerprint: d.ticket.Fingerprint, Depth: 3},
		Err:     err,
	})
}

type fakeDispatcher struct {
	calls chan dispatched
	err   error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan dispatched, 16)}
}

func (d *fakeDispatcher) Dispatch(ticket processor.Ticket, done func(processor.AnalysisOutcome)) error {
	if d.err != nil {
		return d.err
	}
	d.calls <- dispatched{ticket: ticket, done: done}
	return nil
}

func (d *fakeDispatcher) next(t *testing.T) dispatched {
	t.Helper()
	select {
	case c := <-d.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("nothing dispatched")
		return dispatched{}
	}
}

type appended struct {
	gameID  string
	ownerID string
	move    core.Move
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []appended
}

func (l *fakeLedger) Append(gameID, ownerID string, move core.Move) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, appended{gameID, ownerID, move})
}

func (l *fakeLedger) all() []appended {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]appended(nil), l.entries...)
}

type harness struct {
	conn       *fakeConn
	dispatcher *fakeDispatcher
	ledger     *fakeLedger
	manager    *Manager
	served     chan error
	cancel     context.CancelFunc
}

func startSession(t *testing.T, identity Identity) *harness {
	t.Helper()
	h := &harness{
		conn:       newFakeConn(),
		dispatcher: newFakeDispatcher(),
		ledger:     &fakeLedger{},
		served:     make(chan error, 1),
	}
	h.manager = NewManager(Config{Dispatcher: h.dispatcher, Ledger: h.ledger, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.served <- h.manager.Serve(ctx, h.conn, identity) }()
	t.Cleanup(func() {
		cancel()
		h.conn.hangUp()
	})

	hello := h.conn.next(t)
	require.Equal(t, core.MessageSession, hello.Type)
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.served:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

type moveData struct {
	GameID string         `json:"gameId,omitempty"`
	FEN    string         `json:"fen"`
	Move   map[string]any `json:"move"`
}

func moveEvent(gameID, fen, from, to string) core.InboundEnvelope {
	data, _ := json.Marshal(moveData{
		GameID: gameID,
		FEN:    fen,
		Move:   map[string]any{"from": from, "to": to, "promotion": nil},
	})
	return core.InboundEnvelope{Type: core.EventMove, Data: data}
}

func TestServe_AnnouncesSession(t *testing.T) {
	conn := newFakeConn()
	m := NewManager(Config{Dispatcher: newFakeDispatcher(), Logger: zerolog.Nop()})

	served := make(chan error, 1)
	go func() { served <- m.Serve(context.Background(), conn, Identity{UserID: "alice"}) }()

	hello := conn.next(t)
	require.Equal(t, core.MessageSession, hello.Type)
	msg := hello.Data.(core.SessionMessage)
	assert.True(t, msg.Authenticated)
	_, err := uuid.Parse(msg.SessionID)
	assert.NoError(t, err)
	assert.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 5*time.Millisecond)

	conn.hangUp()
	require.NoError(t, <-served)
	assert.Equal(t, 0, m.Count())
}

func TestMove_DeliversAnalysis(t *testing.T) {
	h := startSession(t, Identity{})

	ev := moveEvent("", fen0, "e2", "e4")
	h.conn.push(t, ev)

	call := h.dispatcher.next(t)
	assert.Equal(t, fen0, call.ticket.Fingerprint)

	call.succeed(core.AnalysisResult{
		BestMove:           "e2e4",
		Evaluation:         0.3,
		Depth:              3,
		PrincipalVariation: []string{"e2e4"},
	})

	msg := h.conn.next(t)
	require.Equal(t, core.MessageAnalysis, msg.Type)
	analysis := msg.Data.(core.AnalysisMessage)
	assert.Equal(t, fen0, analysis.FEN)
	assert.Equal(t, core.AnalysisPayload{BestMove: "e2e4", Evaluation: 0.3, Depth: 3, PV: []string{"e2e4"}}, analysis.Analysis)

	var sent moveData
	require.NoError(t, json.Unmarshal(ev.Data, &sent))
	original, _ := json.Marshal(sent.Move)
	assert.JSONEq(t, string(original), string(analysis.Move), "move object must be echoed unchanged")
}

func TestMove_StaleResultDropped(t *testing.T) {
	h := startSession(t, Identity{})

	h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
	first := h.dispatcher.next(t)
	h.conn.push(t, moveEvent("", fen1, "e7", "e5"))
	second := h.dispatcher.next(t)

	// The first analysis finishes after the session moved on to fen1
	first.succeed(core.AnalysisResult{BestMove: "e2e4", Depth: 3})
	h.conn.quiet(t, 100*time.Millisecond)

	second.succeed(core.AnalysisResult{BestMove: "g1f3", Depth: 3})
	msg := h.conn.next(t)
	require.Equal(t, core.MessageAnalysis, msg.Type)
	assert.Equal(t, fen1, msg.Data.(core.AnalysisMessage).FEN)
	assert.Equal(t, "g1f3", msg.Data.(core.AnalysisMessage).Analysis.BestMove)
}

func TestMove_OutOfOrderCompletionOnlyLatestDelivered(t *testing.T) {
	h := startSession(t, Identity{})

	h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
	first := h.dispatcher.next(t)
	h.conn.push(t, moveEvent("", fen1, "e7", "e5"))
	second := h.dispatcher.next(t)

	second.succeed(core.AnalysisResult{BestMove: "g1f3", Depth: 3})
	msg := h.conn.next(t)
	assert.Equal(t, fen1, msg.Data.(core.AnalysisMessage).FEN)

	first.succeed(core.AnalysisResult{BestMove: "e2e4", Depth: 3})
	h.conn.quiet(t, 100*time.Millisecond)
}

func TestMove_ReturnToEarlierPositionDelivers(t *testing.T) {
	h := startSession(t, Identity{})

	h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
	first := h.dispatcher.next(t)
	h.conn.push(t, moveEvent("", fen1, "e7", "e5"))
	h.dispatcher.next(t)
	h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
	h.dispatcher.next(t)

	// Staleness compares positions, not requests
	first.succeed(core.AnalysisResult{BestMove: "d2d4", Depth: 3})
	msg := h.conn.next(t)
	assert.Equal(t, fen0, msg.Data.(core.AnalysisMessage).FEN)
}

func TestMove_FailuresReported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &engine.Failure{Kind: engine.KindTimeout, Timeout: 30 * time.Second}, "timed out"},
		{"process error", &engine.Failure{Kind: engine.KindProcess, ExitCode: 1, Stderr: "bad depth\n"}, "bad depth"},
		{"malformed output", &engine.Failure{Kind: engine.KindMalformed, Raw: "garbage"}, "failed to parse engine output"},
		{"shutdown", processor.ErrShuttingDown, "shutting down"},
		{"other", errors.New("boom"), "analysis failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startSession(t, Identity{})
			h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
			h.dispatcher.next(t).fail(tt.err)

			msg := h.conn.next(t)
			require.Equal(t, core.MessageError, msg.Type)
			assert.Contains(t, msg.Data.(core.ErrorMessage).Message, tt.want)
			assert.Equal(t, fen0, msg.Data.(core.ErrorMessage).FEN)
		})
	}
}

func TestMove_SupersededFailureNamesItsPosition(t *testing.T) {
	h := startSession(t, Identity{})

	h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
	first := h.dispatcher.next(t)
	h.conn.push(t, moveEvent("", fen1, "e7", "e5"))
	second := h.dispatcher.next(t)

	second.succeed(core.AnalysisResult{BestMove: "g1f3", Depth: 3})
	require.Equal(t, core.MessageAnalysis, h.conn.next(t).Type)

	first.fail(&engine.Failure{Kind: engine.KindTimeout, Timeout: 30 * time.Second})
	msg := h.conn.next(t)
	require.Equal(t, core.MessageError, msg.Type)
	assert.Equal(t, fen0, msg.Data.(core.ErrorMessage).FEN)
}

func TestHandle_InvalidEventsKeepSessionAlive(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `{"type":`, "invalid message format"},
		{"unknown type", `{"type":"resign","data":{}}`, "unknown event type"},
		{"move data not object", `{"type":"move","data":"e2e4"}`, "invalid move event"},
		{"missing fen", `{"type":"move","data":{"move":{"from":"e2","to":"e4"}}}`, "fen is required"},
		{"missing move", `{"type":"move","data":{"fen":"` + fen0 + `"}}`, "move is required"},
		{"move not object", `{"type":"move","data":{"fen":"` + fen0 + `","move":"e2e4"}}`, "invalid move"},
		{"move without squares", `{"type":"move","data":{"fen":"` + fen0 + `","move":{}}}`, "from is required"},
		{"bad game id", `{"type":"move","data":{"gameId":"nope","fen":"` + fen0 + `","move":{"from":"e2","to":"e4"}}}`, "gameId must be a valid UUID"},
		{"bad fen", `{"type":"move","data":{"fen":"not a position","move":{"from":"e2","to":"e4"}}}`, "invalid FEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startSession(t, Identity{})

			h.conn.in <- []byte(tt.raw)
			msg := h.conn.next(t)
			require.Equal(t, core.MessageError, msg.Type)
			assert.Contains(t, msg.Data.(core.ErrorMessage).Message, tt.want)

			// Still serving
			h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
			h.dispatcher.next(t).succeed(core.AnalysisResult{BestMove: "e7e5", Depth: 3})
			assert.Equal(t, core.MessageAnalysis, h.conn.next(t).Type)
		})
	}
}

func TestHandle_RejectedMoveSupersedesEarlierAnalysis(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unparsable fen", `{"type":"move","data":{"fen":"8/8/8 w - - 0 1","move":{"from":"e2","to":"e4"}}}`},
		{"move without squares", `{"type":"move","data":{"fen":"` + fen1 + `","move":{}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startSession(t, Identity{})

			h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
			call := h.dispatcher.next(t)

			h.conn.in <- []byte(tt.raw)
			require.Equal(t, core.MessageError, h.conn.next(t).Type)

			// The client left fen0 even though the new position was not analysed
			call.succeed(core.AnalysisResult{BestMove: "e7e5", Depth: 3})
			h.conn.quiet(t, 100*time.Millisecond)
		})
	}
}

func TestHandle_UndecodableMoveKeepsPosition(t *testing.T) {
	h := startSession(t, Identity{})

	h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
	call := h.dispatcher.next(t)

	h.conn.in <- []byte(`{"type":"move","data":"e2e4"}`)
	require.Equal(t, core.MessageError, h.conn.next(t).Type)

	call.succeed(core.AnalysisResult{BestMove: "e7e5", Depth: 3})
	msg := h.conn.next(t)
	require.Equal(t, core.MessageAnalysis, msg.Type)
	assert.Equal(t, fen0, msg.Data.(core.AnalysisMessage).FEN)
}

func TestMove_DispatchFailure(t *testing.T) {
	h := startSession(t, Identity{})
	h.dispatcher.err = processor.ErrShuttingDown

	h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
	msg := h.conn.next(t)
	require.Equal(t, core.MessageError, msg.Type)
	assert.Contains(t, msg.Data.(core.ErrorMessage).Message, "analysis unavailable")
}

func TestLedger_AuthenticatedMoveWithGameRecorded(t *testing.T) {
	h := startSession(t, Identity{UserID: "alice"})
	gameID := uuid.NewString()

	h.conn.push(t, moveEvent(gameID, fen0, "e2", "e4"))
	h.dispatcher.next(t).succeed(core.AnalysisResult{BestMove: "e7e5", Evaluation: 0.3, Depth: 3})
	require.Equal(t, core.MessageAnalysis, h.conn.next(t).Type)

	entries := h.ledger.all()
	require.Len(t, entries, 1)
	assert.Equal(t, gameID, entries[0].gameID)
	assert.Equal(t, "alice", entries[0].ownerID)
	assert.Equal(t, "e2", entries[0].move.From)
	assert.Equal(t, "e4", entries[0].move.To)
	assert.Equal(t, fen0, entries[0].move.Fingerprint)
	assert.Equal(t, 0.3, entries[0].move.Evaluation)
	assert.Equal(t, int64(1), entries[0].move.Sequence)
	assert.False(t, entries[0].move.SubmittedAt.IsZero())
}

func TestLedger_StaleMoveStillRecorded(t *testing.T) {
	h := startSession(t, Identity{UserID: "alice"})
	gameID := uuid.NewString()

	h.conn.push(t, moveEvent(gameID, fen1, "e2", "e4"))
	first := h.dispatcher.next(t)
	h.conn.push(t, moveEvent(gameID, fen2, "e7", "e5"))
	second := h.dispatcher.next(t)

	second.succeed(core.AnalysisResult{Evaluation: 0.1, Depth: 3})
	require.Equal(t, core.MessageAnalysis, h.conn.next(t).Type)
	first.succeed(core.AnalysisResult{Evaluation: 0.2, Depth: 3})
	h.conn.quiet(t, 50*time.Millisecond)

	entries := h.ledger.all()
	require.Len(t, entries, 2)
	bySeq := map[int64]appended{}
	for _, e := range entries {
		bySeq[e.move.Sequence] = e
	}
	assert.Equal(t, "e2", bySeq[1].move.From)
	assert.Equal(t, 0.2, bySeq[1].move.Evaluation)
	assert.Equal(t, "e7", bySeq[2].move.From)
	assert.True(t, bySeq[1].move.SubmittedAt.Before(bySeq[2].move.SubmittedAt) ||
		bySeq[1].move.SubmittedAt.Equal(bySeq[2].move.SubmittedAt))
}

func TestLedger_NotRecorded(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		h := startSession(t, Identity{})
		h.conn.push(t, moveEvent(uuid.NewString(), fen0, "e2", "e4"))
		h.dispatcher.next(t).succeed(core.AnalysisResult{Depth: 3})
		h.conn.next(t)
		assert.Empty(t, h.ledger.all())
	})

	t.Run("no game id", func(t *testing.T) {
		h := startSession(t, Identity{UserID: "alice"})
		h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
		h.dispatcher.next(t).succeed(core.AnalysisResult{Depth: 3})
		h.conn.next(t)
		assert.Empty(t, h.ledger.all())
	})

	t.Run("failed analysis", func(t *testing.T) {
		h := startSession(t, Identity{UserID: "alice"})
		h.conn.push(t, moveEvent(uuid.NewString(), fen0, "e2", "e4"))
		h.dispatcher.next(t).fail(&engine.Failure{Kind: engine.KindTimeout, Timeout: time.Second})
		h.conn.next(t)
		assert.Empty(t, h.ledger.all())
	})
}

// panicLedger stands in for a broken ledger collaborator
type panicLedger struct{}

func (panicLedger) Append(string, string, core.Move) { panic("ledger unavailable") }

func TestLedger_DeliveryIndependentOfLedger(t *testing.T) {
	conn := newFakeConn()
	d := newFakeDispatcher()
	m := NewManager(Config{Dispatcher: d, Ledger: panicLedger{}, Logger: zerolog.Nop()})
	go m.Serve(context.Background(), conn, Identity{UserID: "alice"})
	defer conn.hangUp()
	conn.next(t)

	conn.push(t, moveEvent(uuid.NewString(), fen0, "e2", "e4"))
	d.next(t).succeed(core.AnalysisResult{BestMove: "e7e5", Depth: 3})
	assert.Equal(t, core.MessageAnalysis, conn.next(t).Type)
}

func TestServe_DisconnectDropsInFlight(t *testing.T) {
	h := startSession(t, Identity{})

	h.conn.push(t, moveEvent("", fen0, "e2", "e4"))
	call := h.dispatcher.next(t)

	h.conn.hangUp()
	require.NoError(t, h.wait(t))
	assert.Equal(t, 0, h.manager.Count())

	returned := make(chan struct{})
	go func() {
		call.succeed(core.AnalysisResult{Depth: 3})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("completion for a closed session blocked")
	}
}

func TestServe_ContextCancelEndsSession(t *testing.T) {
	h := startSession(t, Identity{})
	h.cancel()
	assert.NoError(t, h.wait(t))
	assert.Equal(t, 0, h.manager.Count())
}

func TestServe_SendFailureEndsSession(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = fmt.Errorf("broken pipe")
	m := NewManager(Config{Dispatcher: newFakeDispatcher(), Logger: zerolog.Nop()})

	err := m.Serve(context.Background(), conn, Identity{})
	assert.ErrorContains(t, err, "broken pipe")
	assert.Equal(t, 0, m.Count())
}

func TestManager_SessionsIsolated(t *testing.T) {
	d := newFakeDispatcher()
	m := NewManager(Config{Dispatcher: d, Logger: zerolog.Nop()})

	a, b := newFakeConn(), newFakeConn()
	go m.Serve(context.Background(), a, Identity{})
	go m.Serve(context.Background(), b, Identity{})
	defer a.hangUp()
	defer b.hangUp()
	a.next(t)
	b.next(t)
	assert.Eventually(t, func() bool { return m.Count() == 2 }, time.Second, 5*time.Millisecond)

	a.push(t, moveEvent("", fen0, "e2", "e4"))
	callA := d.next(t)
	b.push(t, moveEvent("", fen1, "e7", "e5"))
	callB := d.next(t)

	// b's move does not make a's result stale
	callA.succeed(core.AnalysisResult{BestMove: "e7e5", Depth: 3})
	assert.Equal(t, fen0, a.next(t).Data.(core.AnalysisMessage).FEN)
	callB.succeed(core.AnalysisResult{BestMove: "g1f3", Depth: 3})
	assert.Equal(t, fen1, b.next(t).Data.(core.AnalysisMessage).FEN)
}

func TestServe_EventRateLimit(t *testing.T) {
	d := newFakeDispatcher()
	m := NewManager(Config{Dispatcher: d, EventRate: 0.001, EventBurst: 2, Logger: zerolog.Nop()})

	conn := newFakeConn()
	go m.Serve(context.Background(), conn, Identity{})
	defer conn.hangUp()
	conn.next(t)

	conn.push(t, moveEvent("", fen0, "e2", "e4"))
	d.next(t)
	conn.push(t, moveEvent("", fen1, "e7", "e5"))
	d.next(t)

	conn.push(t, moveEvent("", fen0, "e2", "e4"))
	msg := conn.next(t)
	require.Equal(t, core.MessageError, msg.Type)
	assert.Equal(t, "rate limit exceeded, slow down", msg.Data.(core.ErrorMessage).Message)
	assert.Empty(t, d.calls)
}

func TestServe_ThrottledMoveSupersedesEarlierAnalysis(t *testing.T) {
	d := newFakeDispatcher()
	m := NewManager(Config{Dispatcher: d, EventRate: 0.001, EventBurst: 1, Logger: zerolog.Nop()})

	conn := newFakeConn()
	go m.Serve(context.Background(), conn, Identity{})
	defer conn.hangUp()
	conn.next(t)

	conn.push(t, moveEvent("", fen0, "e2", "e4"))
	call := d.next(t)

	conn.push(t, moveEvent("", fen1, "e7", "e5"))
	msg := conn.next(t)
	require.Equal(t, core.MessageError, msg.Type)
	assert.Equal(t, "rate limit exceeded, slow down", msg.Data.(core.ErrorMessage).Message)

	// fen0 is no longer the client's position
	call.succeed(core.AnalysisResult{BestMove: "e7e5", Depth: 3})
	conn.quiet(t, 100*time.Millisecond)
	assert.Empty(t, d.calls)
}
