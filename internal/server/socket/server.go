// Package socket accepts websocket connections and hands each one to the
// session manager.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/session"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TokenValidator validates JWT tokens
type TokenValidator func(token string) (userID string, claims map[string]any, err error)

// Config configures a Server
type Config struct {
	Host           string
	Port           int
	Path           string
	AllowedOrigins []string // empty allows any origin
	Sessions       *session.Manager
	ValidateToken  TokenValidator // nil makes every session anonymous
	Logger         zerolog.Logger
}

// Server upgrades HTTP requests on Path to analysis sessions
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	http     *http.Server
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "socket").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, s)

	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.http.Addr
}

// ListenAndServe blocks until Shutdown
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Str("path", s.cfg.Path).Msg("session socket listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and ends every live session
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}

// ServeHTTP authenticates the caller, upgrades and runs the session until
// the connection ends
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("session rejected")
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	if err := s.cfg.Sessions.Serve(s.ctx, newConn(ws), identity); err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("session ended with error")
	}
}

// authenticate resolves the optional token; only a present but invalid token
// is an error
func (s *Server) authenticate(r *http.Request) (session.Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if token == "" || s.cfg.ValidateToken == nil {
		return session.Identity{}, nil
	}

	userID, _, err := s.cfg.ValidateToken(token)
	if err != nil {
		return session.Identity{}, fmt.Errorf("%s: %w", core.ErrUnauthorized, err)
	}
	return session.Identity{UserID: userID}, nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
