package server

import (
	"context"
	"net"

	"github.com/go-zoox/gztun/config"
	"github.com/go-zoox/gztun/registry"
	"github.com/go-zoox/logger"
)

// Server is the publicly reachable tunnel daemon. It owns two listeners:
// one clients dial out to for their control/data connections, one
// external SOCKS5 users connect to.
type Server struct {
	cfg *config.Server

	clients   *registry.Map[*clientChannel]
	userLocks *registry.LockTable

	// requireKeyPrefix enforces the "ZC-" clientKey convention on AUTH;
	// the wire format itself never requires it (see DESIGN.md).
	requireKeyPrefix bool
}

// New creates a Server from its loaded configuration.
func New(cfg *config.Server) *Server {
	return &Server{
		cfg:              cfg,
		clients:          registry.New[*clientChannel](),
		userLocks:        registry.NewLockTable(),
		requireKeyPrefix: true,
	}
}

// Run blocks serving both listeners until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	clientListener, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return err
	}
	defer clientListener.Close()

	socksListener, err := net.Listen("tcp", s.cfg.SocksAddr())
	if err != nil {
		return err
	}
	defer socksListener.Close()

	logger.Info("[server] client listener on %s", s.cfg.ListenAddr())
	logger.Info("[server] socks5 listener on %s", s.cfg.SocksAddr())

	go s.acceptLoop(ctx, clientListener, s.serveClientConn)
	go s.acceptLoop(ctx, socksListener, s.serveSocksConn)

	<-ctx.Done()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, l net.Listener, handle func(net.Conn)) {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("[server] accept error on %s: %v", l.Addr(), err)
				continue
			}
		}
		go handle(conn)
	}
}

func (s *Server) serveClientConn(conn net.Conn) {
	c := newClientChannel(conn, s)
	c.serve()
}

func (s *Server) serveSocksConn(conn net.Conn) {
	uc := newUserChannel(conn, s)
	uc.serve()
}
