// client.go
// The read goroutine watches a client for disconnection; clients are not
// expected to send anything, so incoming bytes are discarded. Writes happen
// on the manager's loop goroutine, one payload at a time.

package main

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

func (c *Client) read(ctx context.Context, m *ClientManager) {
	for {
		if err := c.socket.recv(); err != nil {
			m.post(ctx, event{kind: evDisconnect, source: c.socket.transport(), client: c, err: err})
			return
		}
	}
}

func newTCPClient(conn net.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		remote: remoteHost(conn.RemoteAddr()),
		socket: &tcpConn{conn: conn, buf: make([]byte, 512)},
	}
}

// remoteHost returns the IP of addr without the port.
func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

type tcpConn struct {
	conn net.Conn
	buf  []byte
}

func (t *tcpConn) send(p []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := t.conn.Write(p)
	return err
}

func (t *tcpConn) recv() error {
	n, err := t.conn.Read(t.buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return io.EOF
	}
	return nil
}

func (t *tcpConn) close() error      { return t.conn.Close() }
func (t *tcpConn) transport() string { return "tcp" }
