// Package stream is the client side of an analysis session socket.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chessanalysis/internal/server/core"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Handler receives every server message in arrival order
type Handler func(msgType string, data json.RawMessage)

// Conn is a live session connection
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	err     error
}

// Dial connects to the session socket at rawURL; token may be empty for an
// anonymous session. handler runs on the connection's reader goroutine.
func Dial(rawURL, token string, handler Handler) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid socket url: %w", err)
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}

	c := &Conn{ws: ws, done: make(chan struct{})}
	go c.readLoop(handler)
	return c, nil
}

func (c *Conn) readLoop(handler Handler) {
	defer close(c.done)
	for {
		var env core.InboundEnvelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.err = err
			}
			return
		}
		handler(env.Type, env.Data)
	}
}

// SendMove submits a move event for the position reached after move
func (c *Conn) SendMove(gameID, fen string, move any) error {
	raw, err := json.Marshal(move)
	if err != nil {
		return err
	}
	return c.send(core.EventMove, core.MoveEvent{GameID: gameID, FEN: fen, Move: raw})
}

// SendRaw writes text as-is, for probing the server's error handling
func (c *Conn) SendRaw(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *Conn) send(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(core.InboundEnvelope{Type: eventType, Data: data})
}

// Done is closed when the server side ends the connection
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the reader stopped; nil after a clean close
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close sends a close frame and waits briefly for the reader to finish
func (c *Conn) Close() error {
	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	c.ws.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
