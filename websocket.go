// websocket.go
// Browser clients connect over WebSocket and join the same registry as
// TCP clients. Keep CheckOrigin permissive: the relay has no notion of
// who may listen.

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsCloseGrace = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsSource serves websocket upgrades on one HTTP listener.
type wsSource struct {
	ln   net.Listener
	path string
}

func listenWebSocket(cfg websocketConfig) (*wsSource, error) {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, listenError(cfg.Listen, err)
	}
	return &wsSource{ln: ln, path: cfg.Path}, nil
}

func (s *wsSource) name() string { return "websocket " + s.ln.Addr().String() + s.path }

func (s *wsSource) run(ctx context.Context, m *ClientManager) {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied to the client.
			m.log.Debug("websocket upgrade failed", String("remote", r.RemoteAddr), Err(err))
			return
		}
		client := newWSClient(conn)
		if !m.post(ctx, event{kind: evAccept, source: "websocket", client: client}) {
			_ = conn.Close()
		}
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	err := server.Serve(s.ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	m.post(ctx, event{kind: evSourceDone, source: s.name(), err: err})
}

func newWSClient(conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		remote: remoteHost(conn.RemoteAddr()),
		socket: &wsConn{socket: conn},
	}
}

type wsConn struct {
	socket *websocket.Conn
}

// send writes p as one message: text when it is valid UTF-8, binary
// otherwise.
func (c *wsConn) send(p []byte, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.socket.SetWriteDeadline(deadline); err != nil {
		return err
	}
	kind := websocket.TextMessage
	if !utf8.Valid(p) {
		kind = websocket.BinaryMessage
	}
	return c.socket.WriteMessage(kind, p)
}

func (c *wsConn) recv() error {
	_, _, err := c.socket.ReadMessage()
	return err
}

func (c *wsConn) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = c.socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseGrace))
	return c.socket.Close()
}

func (c *wsConn) transport() string { return "websocket" }
