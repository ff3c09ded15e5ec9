package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"sync/atomic"

	"hearth/internal/daemoncontext"
	"hearth/internal/logging"
)

// Backend is the daemon behind the server.
type Backend interface {
	Context() daemoncontext.Context
	// TryAcquire moves the daemon from idle to busy. It reports false when
	// the daemon is busy or shutting down.
	TryAcquire() bool
	Release()
	Status() StatusResponse
	// RequestStop begins shutdown without waiting for it.
	RequestStop()
}

// Server exposes a Backend via JSON-RPC on a listener.
type Server struct {
	address  string
	backend  Backend
	logger   *slog.Logger
	listener net.Listener
	clients  atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the server on an open listener. address is the
// resolved form reported by Listen.
func NewServer(ctx context.Context, listener net.Listener, address string, backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("ipc server requires backend")
	}
	if listener == nil {
		return nil, errors.New("ipc server requires listener")
	}
	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		address:  address,
		backend:  backend,
		logger:   logging.NewComponentLogger(logger, "ipc"),
		listener: listener,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Address returns the address clients dial.
func (s *Server) Address() string {
	return s.address
}

// Clients reports the number of open connections.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

// Serve accepts RPC connections until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String(logging.FieldAddress, s.address))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.serveConn(c)
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		if s.ctx.Err() != nil {
			_ = conn.Close()
		}
		s.conns[conn] = struct{}{}
		s.clients.Add(1)
		return
	}
	delete(s.conns, conn)
	s.clients.Add(-1)
}

func (s *Server) serveConn(conn net.Conn) {
	sess := &session{backend: s.backend, logger: s.logger}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, sess); err != nil {
		s.logger.Error("register rpc service", logging.Error(err))
		_ = conn.Close()
		return
	}
	rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	sess.close()
}

// Close stops accepting, drops open connections, and removes a unix socket.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	network, target, err := ParseAddress(s.address)
	if err != nil || network != NetworkUnix {
		return
	}
	if err := os.RemoveAll(target); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", target),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale socket file left behind"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or run `hearth prune`"))
	}
}

// session serves one connection. It releases the daemon if the client
// disconnects while holding it.
type session struct {
	backend Backend
	logger  *slog.Logger

	mu       sync.Mutex
	acquired bool
}

func (s *session) Acquire(req AcquireRequest, resp *AcquireResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp.Context = s.backend.Context()
	if s.acquired {
		resp.Acquired = true
		return nil
	}
	if !s.backend.TryAcquire() {
		resp.Busy = true
		s.logger.Debug("acquire refused; daemon busy", logging.Int("client_pid", req.ClientPID))
		return nil
	}
	s.acquired = true
	resp.Acquired = true
	s.logger.Info("daemon acquired",
		logging.String(logging.FieldEventType, "daemon_acquired"),
		logging.Int("client_pid", req.ClientPID))
	return nil
}

func (s *session) Release(_ ReleaseRequest, resp *ReleaseResponse) error {
	resp.Released = s.release()
	return nil
}

func (s *session) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.backend.Status()
	return nil
}

func (s *session) Ping(_ PingRequest, resp *PingResponse) error {
	ctx := s.backend.Context()
	resp.UID = ctx.UID
	resp.PID = ctx.PID
	return nil
}

func (s *session) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop_requested"))
	// Stopping closes this connection; reply first.
	go s.backend.RequestStop()
	resp.Stopping = true
	return nil
}

func (s *session) release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acquired {
		return false
	}
	s.acquired = false
	s.backend.Release()
	s.logger.Info("daemon released",
		logging.String(logging.FieldEventType, "daemon_released"))
	return true
}

func (s *session) close() {
	if s.release() {
		s.logger.Debug("released daemon held by disconnected client")
	}
}
