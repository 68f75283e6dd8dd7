// Package session holds the interactive client's mutable state.
package session

import (
	"io"

	"chessanalysis/internal/client/api"
	"chessanalysis/internal/client/stream"

	"github.com/notnil/chess"
)

type Session struct {
	APIBaseURL string
	SocketURL  string
	AuthToken  string
	GameID     string // ledger game moves are recorded under, empty for none
	Verbose    bool

	Game   *chess.Game
	Client *api.Client
	Conn   *stream.Conn
	Out    io.Writer
}

// New returns a session at the starting position
func New(apiURL, socketURL string, out io.Writer) *Session {
	return &Session{
		APIBaseURL: apiURL,
		SocketURL:  socketURL,
		Game:       chess.NewGame(),
		Client:     api.New(apiURL, out),
		Out:        out,
	}
}

// Connected reports whether a live session socket is open
func (s *Session) Connected() bool {
	if s.Conn == nil {
		return false
	}
	select {
	case <-s.Conn.Done():
		return false
	default:
		return true
	}
}

// SetToken updates the token used by both the REST client and new sockets
func (s *Session) SetToken(token string) {
	s.AuthToken = token
	s.Client.SetToken(token)
}
