package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	apperrors "guild-intake/internal/common/errors"
	"guild-intake/internal/common/logger"
	"guild-intake/internal/common/metrics"
)

type ServerConfig struct {
	// ReadTimeout bounds how long a client may take to send its request.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration
	// HandlerTimeout bounds one command. The handler context is detached
	// from the connection: a client that hangs up does not cancel work
	// already in progress.
	HandlerTimeout  time.Duration
	MaxRequestBytes int64
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 60 * time.Second
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = 1024 * 1024
	}
	return c
}

// Server accepts relay connections and dispatches each request to the
// handler registered for its command.
type Server struct {
	config   ServerConfig
	auth     *Authenticator
	handlers map[string]HandlerFunc
	log      logger.Logger
	errors   *apperrors.ErrorHandler

	active sync.WaitGroup
}

func NewServer(config ServerConfig, auth *Authenticator, log logger.Logger) *Server {
	return &Server{
		config:   config.withDefaults(),
		auth:     auth,
		handlers: make(map[string]HandlerFunc),
		log:      log.WithFields(map[string]interface{}{"component": "relay-server"}),
		errors:   apperrors.NewErrorHandler(log),
	}
}

// Handle registers handler for command. It panics on duplicates and must
// be called before Serve.
func (s *Server) Handle(command string, handler HandlerFunc) {
	if _, exists := s.handlers[command]; exists {
		panic(fmt.Sprintf("relay: duplicate handler for command %q", command))
	}
	s.handlers[command] = handler
}

// ListenAndServe listens on a TCP address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve blocks until ctx is cancelled, then stops accepting and waits for
// in-flight requests to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("Relay server listening", map[string]interface{}{
		"address":  ln.Addr().String(),
		"commands": len(s.handlers),
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error("Accept failed", map[string]interface{}{"error": err})
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	s.log.Info("Relay server stopped", nil)
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

	var req Request
	if err := newDecoder(io.LimitReader(conn, s.config.MaxRequestBytes)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.log.Warn("Invalid relay request", map[string]interface{}{
			"remote": conn.RemoteAddr().String(),
			"error":  err,
		})
		s.writeResponse(conn, errorResponse(apperrors.NewMalformedInputError("request", err.Error())))
		return
	}

	log := s.log.WithFields(map[string]interface{}{
		"command":   req.Command,
		"requestId": req.RequestID,
	})

	if _, err := s.auth.Verify(req.Token, req.Command); err != nil {
		log.Warn("Relay authentication failed", map[string]interface{}{
			"remote": conn.RemoteAddr().String(),
			"error":  err,
		})
		metrics.RelayRequests.WithLabelValues(req.Command, string(apperrors.ErrCodeAuthenticationFailed)).Inc()
		s.writeResponse(conn, errorResponse(apperrors.NewAuthenticationFailedError("relay")))
		return
	}

	handler, ok := s.handlers[req.Command]
	if !ok {
		log.Warn("Unknown relay command", nil)
		metrics.RelayRequests.WithLabelValues(req.Command, string(apperrors.ErrCodeUnknownCommand)).Inc()
		s.writeResponse(conn, errorResponse(apperrors.NewUnknownCommandError(req.Command)))
		return
	}

	s.writeResponse(conn, s.dispatch(ctx, req, handler, log))
}

func (s *Server) dispatch(ctx context.Context, req Request, handler HandlerFunc, log logger.Logger) Response {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.HandlerTimeout)
	defer cancel()
	hctx = withRequestID(hctx, req.RequestID)

	start := time.Now()
	result, err := handler(hctx, req.Payload)
	metrics.RelayRequestDuration.WithLabelValues(req.Command).Observe(time.Since(start).Seconds())

	if err != nil {
		stdErr := s.errors.HandleCommandError(req.Command, req.RequestID, err)
		metrics.RelayRequests.WithLabelValues(req.Command, string(stdErr.Code)).Inc()
		return errorResponse(stdErr)
	}

	metrics.RelayRequests.WithLabelValues(req.Command, "OK").Inc()
	log.Debug("Relay command completed", map[string]interface{}{
		"durationMs": time.Since(start).Milliseconds(),
	})

	resp := Response{OK: true}
	if result != nil {
		data, err := Marshal(result)
		if err != nil {
			return errorResponse(apperrors.Normalize(fmt.Errorf("marshaling response: %w", err)))
		}
		resp.Data = data
	}
	return resp
}

func errorResponse(err *apperrors.StandardError) Response {
	return Response{
		OK:      false,
		Code:    string(err.Code),
		Error:   err.Message,
		Details: err.Details,
	}
}

// writeResponse failures are only logged; the client sees a transport
// failure either way.
func (s *Server) writeResponse(conn net.Conn, resp Response) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := newEncoder(conn).Encode(resp); err != nil {
		s.log.Debug("Failed to write relay response", map[string]interface{}{"error": err})
	}
}
