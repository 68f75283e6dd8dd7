package socket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/session"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// wsConn adapts a websocket connection to session.Conn and keeps it alive
// with pings
type wsConn struct {
	ws        *websocket.Conn
	stop      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{
		ws:   ws,
		stop: make(chan struct{}),
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pingLoop()
	return c
}

// Receive returns the next text frame; a clean close maps to session.ErrClosed
func (c *wsConn) Receive() ([]byte, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil, session.ErrClosed
			}
			return nil, fmt.Errorf("read: %w", err)
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Send(msg core.OutboundEnvelope) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears down the connection
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				return
			}
		}
	}
}
