package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kikokikok/fps-genie/internal/logging"
	"github.com/kikokikok/fps-genie/internal/wire"
)

// Server answers InputRecord requests with OutputRecord replies over
// plain TCP. One connection is serviced at a time; ordering within a
// connection is strict request-response.
type Server struct {
	addr   string
	policy Policy
	logger *logging.Logger

	listener net.Listener
	stopping atomic.Bool
	doneCh   chan struct{}

	mu         sync.Mutex
	activeConn net.Conn
}

// NewServer creates a policy server
func NewServer(addr string, policy Policy, logger *logging.Logger) (*Server, error) {
	if policy == nil {
		return nil, fmt.Errorf("policy cannot be nil")
	}
	if logger == nil {
		logger = logging.NewLogger(logging.LevelInfo, logging.FormatJSON)
	}
	return &Server{
		addr:   addr,
		policy: policy,
		logger: logger,
		doneCh: make(chan struct{}),
	}, nil
}

// Start binds the listener and launches the accept loop
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.logger.WithField("addr", listener.Addr().String()).Info("Policy server listening")

	go s.acceptLoop()
	return nil
}

// Addr returns the bound address, valid after Start
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown stops accepting, unblocks any idle read and waits for the
// in-flight request to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopping.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	if s.activeConn != nil {
		_ = s.activeConn.Close()
	}
	s.mu.Unlock()

	select {
	case <-s.doneCh:
		s.logger.Info("Policy server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("shutdown timeout")
	}
}

// acceptLoop services connections sequentially. The shutdown flag is
// checked between accepts; a failed accept during shutdown is the normal
// exit path.
func (s *Server) acceptLoop() {
	defer close(s.doneCh)

	for {
		if s.stopping.Load() {
			return
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping.Load() {
				return
			}
			s.logger.WithError(err).Warn("Accept failed")
			continue
		}

		s.mu.Lock()
		s.activeConn = conn
		s.mu.Unlock()

		s.handleConn(conn)

		s.mu.Lock()
		s.activeConn = nil
		s.mu.Unlock()
	}
}

// handleConn runs the request/response loop for one connection. Every
// exit path closes the connection; none of them stop the server.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	logger := s.logger.WithField("peer", conn.RemoteAddr().String())
	buf := make([]byte, wire.InputRecordSize)

	for {
		_, err := io.ReadFull(conn, buf)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				// Clean close between requests
			case errors.Is(err, io.ErrUnexpectedEOF):
				// Partial record: close without a reply
				logger.Debug("Connection closed mid-record")
			case s.stopping.Load():
				// Read unblocked by shutdown
			default:
				logger.WithError(err).Warn("Read failed")
			}
			return
		}

		in, err := wire.InputFromBytes(buf)
		if err != nil {
			logger.WithError(err).Warn("Rejected malformed record")
			return
		}

		out, err := s.policy.Evaluate(in)
		if err != nil {
			logger.WithError(err).Error("Policy evaluation failed")
			return
		}

		// All-or-nothing reply: a short write is connection-fatal
		if _, err := conn.Write(out.Bytes()); err != nil {
			logger.WithError(err).Warn("Write failed")
			return
		}
	}
}
