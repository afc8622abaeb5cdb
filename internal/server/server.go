/*
Package server contains the TCP connection acceptor.

This file defines the Server struct, which owns the listening endpoint. Each
accepted connection passes the per-IP admission check and the concurrent
session cap, then gets its own Session running on its own goroutine. Shutdown
is context-driven: cancelling the serve context stops the accept loop, closes
every live session, and waits for their goroutines to drain.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tcpchat/internal/configs"
	"tcpchat/internal/pkg/errs"
	"tcpchat/internal/pkg/limiter"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/protocol"
	"tcpchat/internal/registry"
	"tcpchat/internal/session"
)

// refuseWriteWait bounds the single farewell frame written to a refused connection.
const refuseWriteWait = 2 * time.Second

// Server struct owns the chat listener and the set of live sessions.
type Server struct {
	// Config holds the application's read-only configuration settings.
	cfg *configs.AppConfig

	// the shared user/room registry handed to every session.
	reg *registry.Registry

	// limiter gates new connections per client IP on the accept path.
	limiter *limiter.IPRateLimiter

	// framer is shared by all sessions; it holds only the frame size limit.
	framer *protocol.Framer

	ln net.Listener

	// mu protects the live session set.
	mu       sync.Mutex
	sessions map[*session.Session]struct{}

	// wg tracks the per-connection goroutines for shutdown.
	wg sync.WaitGroup

	closeOnce sync.Once

	// structured logger with Server context.
	logger zerolog.Logger
}

// New constructs a Server. Call Listen before Serve.
func New(cfg *configs.AppConfig, reg *registry.Registry) *Server {
	serverLogger := logx.Logger().With().Str("component", "Server").Logger()

	return &Server{
		cfg:      cfg,
		reg:      reg,
		limiter:  limiter.NewIPRateLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst),
		framer:   protocol.NewFramer(uint32(cfg.MaxFrameBytes)),
		sessions: make(map[*session.Session]struct{}),
		logger:   serverLogger,
	}
}

// Listen binds the chat listener on the configured port. Failure to bind is
// the only fatal startup error of the service.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind chat listener: %w", err)
	}
	s.ln = ln

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Chat listener bound.")
	return nil
}

// Addr returns the bound listener address. It is only valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or the listener fails.
// On cancellation it closes the listener and all live sessions, waits for
// their goroutines, and returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return fmt.Errorf("server: Serve called before Listen")
	}

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		s.closeListener()
	})
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.shutdownSessions()
				return nil
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}

			return fmt.Errorf("accept failed: %w", err)
		}

		if !s.limiter.Allow(conn.RemoteAddr().String()) {
			s.logger.Warn().Str("remote_addr", conn.RemoteAddr().String()).Msg("Connection refused: rate limit exceeded.")
			s.refuse(conn, errs.NewError(errs.ErrRateLimitExceeded))
			continue
		}

		if !s.tryAddSession(conn) {
			s.logger.Warn().
				Str("remote_addr", conn.RemoteAddr().String()).
				Int("max_sessions", s.cfg.MaxSessions).
				Msg("Connection refused: session cap reached.")
			s.refuse(conn, errs.NewError(errs.ErrServerFull))
			continue
		}
	}
}

// tryAddSession starts a session for conn unless the concurrent session cap
// is reached. It reports whether the connection was admitted.
func (s *Server) tryAddSession(conn net.Conn) bool {
	sess := session.New(conn, s.reg, s.framer, s.cfg.IdleTimeout)

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		return false
	}
	s.sessions[sess] = struct{}{}
	total := len(s.sessions)
	s.mu.Unlock()

	s.logger.Info().
		Str("remote_addr", conn.RemoteAddr().String()).
		Int("active_sessions", total).
		Msg("Connection accepted.")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.removeSession(sess)

		sess.Run()
	}()

	return true
}

// removeSession drops a finished session from the live set.
func (s *Server) removeSession(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// refuse writes a single explanatory frame to a connection that was not
// admitted, then closes it.
func (s *Server) refuse(conn net.Conn, cerr *errs.CustomError) {
	_ = conn.SetWriteDeadline(time.Now().Add(refuseWriteWait))

	if err := s.framer.WritePacket(conn, &protocol.Packet{Body: cerr.Message}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write refusal frame.")
	}

	if err := conn.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close refused connection.")
	}
}

// closeListener closes the listener exactly once.
func (s *Server) closeListener() {
	s.closeOnce.Do(func() {
		if s.ln != nil {
			if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn().Err(err).Msg("Listener close error.")
			}
		}
	})
}

// shutdownSessions closes every live session and waits for their goroutines.
func (s *Server) shutdownSessions() {
	s.closeListener()

	s.mu.Lock()
	live := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	for _, sess := range live {
		sess.Close()
	}

	s.wg.Wait()
	s.logger.Info().Int("closed_sessions", len(live)).Msg("Server shutdown complete.")
}
