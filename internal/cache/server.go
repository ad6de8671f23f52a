package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// Server serves the cache model over the request/reply protocol. Each
// connection is read one request at a time; a mutex around request handling
// orders requests across connections.
type Server struct {
	addr  string
	model *Model
	log   *slog.Logger
	ln    net.Listener

	handleMu sync.Mutex
}

// NewServer creates a server for the given listen address backed by the
// given model.
func NewServer(addr string, model *Model, log *slog.Logger) *Server {
	return &Server{addr: addr, model: model, log: log}
}

// Listen opens the TCP listener. It must be called before Serve.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address. Valid only after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled. A listener failure is
// returned to the caller; the process is expected to exit and be restarted
// externally, since all state is re-derivable from the exchange.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return fmt.Errorf("cache server: Serve called before Listen")
	}
	defer s.ln.Close()

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	s.log.Info("cache service listening", "addr", s.ln.Addr().String())

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

// serveConn runs the request/reply loop for one client connection.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.Warn("decoding request", "remote", conn.RemoteAddr().String(), "err", err)
			}
			return
		}

		resp := s.handle(&req)
		if err := enc.Encode(resp); err != nil {
			s.log.Warn("encoding response", "remote", conn.RemoteAddr().String(), "err", err)
			return
		}
	}
}

// handle applies one request to the model. The mutex makes this the single
// global ordering point for all readers and the ingest path.
func (s *Server) handle(req *Request) *Response {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	switch req.Action {
	case ActionRead:
		return &Response{Status: "ok", Snapshot: s.model.Snapshot()}

	case ActionWrite:
		switch req.Kind {
		case KindPrice:
			if req.Price == nil {
				return &Response{Status: "error", Error: "write price: missing payload"}
			}
			s.model.ApplyPrice(*req.Price)
		case KindOrder:
			if req.Order == nil {
				return &Response{Status: "error", Error: "write order: missing payload"}
			}
			s.model.ApplyOrder(*req.Order)
		default:
			return &Response{Status: "error", Error: fmt.Sprintf("unknown write kind %q", req.Kind)}
		}
		return &Response{Status: "ok"}

	default:
		return &Response{Status: "error", Error: fmt.Sprintf("unknown action %q", req.Action)}
	}
}
