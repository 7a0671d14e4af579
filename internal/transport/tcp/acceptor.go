package tcp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/config"
	"github.com/ldnlab/roomd/internal/transport"
)

// Acceptor listens for framed TCP connections and feeds their events to
// a transport.Handler. It implements the server lifecycle Service shape.
type Acceptor struct {
	cfg     config.TCPConfig
	handler transport.Handler
	logger  *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a TCP acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handler and logger must be
// non-nil.
func NewAcceptor(cfg config.TCPConfig, handler transport.Handler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
	}
}

// Start opens the listener and accepts connections until Stop is called.
// It blocks for the acceptor's lifetime.
//
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) Start() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("tcp acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		a.wg.Add(1)
		go a.serveConn(conn)
	}
}

// serveConn owns one connection: it pumps inbound frames to the handler
// from this goroutine, preserving per-connection message order.
func (a *Acceptor) serveConn(raw net.Conn) {
	defer a.wg.Done()

	p := newPeer(raw, a.cfg.WriteTimeout)
	defer p.close()

	go p.writePump()

	// Tear the link down when the acceptor stops.
	go func() {
		select {
		case <-a.quit:
			p.close()
		case <-p.ctx.Done():
		}
	}()

	a.handler.HandleConnect(p)
	defer a.handler.HandleDisconnect(p)

	for {
		channel, payload, err := p.readFrame(a.cfg.ReadTimeout)
		if err != nil {
			a.logger.Debug("connection closed",
				zap.String("conn_id", p.ID()),
				zap.String("remote_addr", p.Addr()),
				zap.Error(err),
			)
			return
		}
		a.handler.HandleMessage(p, channel, payload)
	}
}

// Stop closes the listener and waits for all connections to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false

	close(a.quit)
	if a.listener != nil {
		a.listener.Close()
	}
	a.wg.Wait()

	a.logger.Info("tcp acceptor stopped")
}

// Addr returns the actual listening address, or empty string before
// Start.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}
