package ws

import (
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/config"
	"github.com/ldnlab/roomd/internal/transport"
)

type recordingHandler struct {
	mu          sync.Mutex
	connects    []transport.Peer
	messages    [][]byte
	channels    []byte
	disconnects int

	gotMessage chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{gotMessage: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleConnect(p transport.Peer) {
	h.mu.Lock()
	h.connects = append(h.connects, p)
	h.mu.Unlock()
}

func (h *recordingHandler) HandleMessage(_ transport.Peer, channel byte, data []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, append([]byte(nil), data...))
	h.channels = append(h.channels, channel)
	h.mu.Unlock()
	h.gotMessage <- struct{}{}
}

func (h *recordingHandler) HandleDisconnect(_ transport.Peer) {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
}

// freePort reserves an ephemeral loopback port for the acceptor, which
// takes its listen address from config rather than a pre-bound listener.
func freePort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return uint16(port)
}

func startAcceptor(t *testing.T, handler transport.Handler, origins []string) (*Acceptor, string) {
	t.Helper()
	cfg := config.WebSocketConfig{Host: "127.0.0.1", Port: freePort(t), AllowedOrigins: origins}

	a := NewAcceptor(cfg, handler, zap.NewNop())
	go func() {
		if err := a.Start(); err != nil {
			t.Errorf("acceptor start: %v", err)
		}
	}()
	t.Cleanup(a.Stop)

	var probe http.Header
	if len(origins) > 0 {
		probe = http.Header{"Origin": []string{origins[0]}}
	}
	url := "ws://" + cfg.Addr() + "/ws"
	require.Eventually(t, func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(url, probe)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 25*time.Millisecond)
	return a, url
}

func TestAcceptor_BinaryMessageRoundTrip(t *testing.T) {
	handler := newRecordingHandler()
	_, url := startAcceptor(t, handler, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{2, 0xAB, 0xCD}))

	select {
	case <-handler.gotMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the message")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	last := len(handler.messages) - 1
	assert.Equal(t, byte(2), handler.channels[last])
	assert.Equal(t, []byte{0xAB, 0xCD}, handler.messages[last])
}

func TestAcceptor_TextMessagesIgnored(t *testing.T) {
	handler := newRecordingHandler()
	_, url := startAcceptor(t, handler, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 0xFF}))

	select {
	case <-handler.gotMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the binary message")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	last := len(handler.messages) - 1
	assert.Equal(t, []byte{0xFF}, handler.messages[last], "text frames must not reach the handler")
}

func TestAcceptor_PeerSendPrependsChannel(t *testing.T) {
	handler := newRecordingHandler()
	_, url := startAcceptor(t, handler, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var p transport.Peer
	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		if len(handler.connects) == 0 {
			return false
		}
		p = handler.connects[len(handler.connects)-1]
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Send(4, []byte("pong")))

	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, append([]byte{4}, "pong"...), msg)
}

func TestAcceptor_OriginAllowlist(t *testing.T) {
	handler := newRecordingHandler()
	_, url := startAcceptor(t, handler, []string{"https://allowed.example"})

	// Denied origin fails the upgrade.
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	// Allowed origin connects.
	header = http.Header{"Origin": []string{"https://allowed.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
