package hostlink

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

// Handler answers one RPC. It must always produce a response.
type Handler interface {
	Handle(ctx context.Context, req *types.RPCRequest) types.RPCResponse
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *types.RPCRequest) types.RPCResponse

func (f HandlerFunc) Handle(ctx context.Context, req *types.RPCRequest) types.RPCResponse {
	return f(ctx, req)
}

// Server reads framed requests and writes one framed response per request.
// Requests on one connection are answered in order.
type Server struct {
	handler Handler

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancelFn context.CancelFunc
}

// NewServer returns a server that answers every frame with h.
func NewServer(h Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:  h,
		conns:    make(map[net.Conn]struct{}),
		baseCtx:  ctx,
		cancelFn: cancel,
	}
}

// Serve accepts until ln is closed by Shutdown. It returns nil after a
// shutdown and the accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ln.Close()
	}
	s.ln = ln
	s.mu.Unlock()

	logger.Info(s.baseCtx, "host link listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	ctx := logger.WithChannelID(s.baseCtx, uuid.NewString())
	for {
		var req types.RPCRequest
		if err := ReadFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) && s.baseCtx.Err() == nil {
				logger.Warn(ctx, "host link read failed", "error", err)
			}
			return
		}

		resp := s.safeHandle(ctx, &req)
		if err := WriteFrame(conn, resp); err != nil {
			logger.Warn(ctx, "host link write failed", "error", err)
			return
		}
	}
}

// safeHandle turns a panicking handler into an InternalError response.
func (s *Server) safeHandle(ctx context.Context, req *types.RPCRequest) (resp types.RPCResponse) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "panic while handling rpc", "method", req.Method, "panic", r)
			resp = types.Failure(req.ID, apperrors.ErrInternal)
		}
	}()
	return s.handler.Handle(ctx, req)
}

// Shutdown stops accepting, cancels in-flight handlers and waits for
// connections to finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.ln != nil {
		s.ln.Close()
	}
	for c := range s.conns {
		_ = c.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()
	s.cancelFn()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
