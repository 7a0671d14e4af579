package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/config"
	"github.com/ldnlab/roomd/internal/transport"
)

// Acceptor upgrades HTTP requests on /ws to WebSocket links and feeds
// their events to a transport.Handler. It implements the server
// lifecycle Service shape.
type Acceptor struct {
	cfg     config.WebSocketConfig
	handler transport.Handler
	logger  *zap.Logger

	server *http.Server
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: handler and logger must be non-nil.
func NewAcceptor(cfg config.WebSocketConfig, handler transport.Handler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start serves the WebSocket endpoint until Stop is called. It blocks
// for the acceptor's lifetime.
func (a *Acceptor) Start() error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     a.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.logger.Warn("websocket upgrade failed",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			return
		}
		a.wg.Add(1)
		go a.servePeer(conn)
	})

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", a.cfg.Addr()),
	)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// servePeer owns one link: it pumps inbound messages to the handler from
// this goroutine, preserving per-connection message order.
func (a *Acceptor) servePeer(conn *websocket.Conn) {
	defer a.wg.Done()

	p := newPeer(conn)
	defer p.close()

	go p.writePump()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	a.handler.HandleConnect(p)
	defer a.handler.HandleDisconnect(p)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			a.logger.Debug("websocket connection closed",
				zap.String("conn_id", p.ID()),
				zap.String("remote_addr", p.Addr()),
				zap.Error(err),
			)
			return
		}
		if kind != websocket.BinaryMessage || len(msg) == 0 {
			continue
		}
		a.handler.HandleMessage(p, msg[0], msg[1:])
	}
}

// checkOrigin admits any origin when no allowlist is configured, else
// requires an exact match.
func (a *Acceptor) checkOrigin(r *http.Request) bool {
	if len(a.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range a.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Stop shuts the HTTP server down and waits for all links to finish.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	srv := a.server
	a.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}
