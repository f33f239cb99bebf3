package main

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, ws *wsSource) *websocket.Conn {
	t.Helper()
	url := "ws://" + ws.ln.Addr().String() + ws.path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn, wantKind int, want string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != wantKind || string(msg) != want {
		t.Fatalf("got (%d, %q), want (%d, %q)", kind, msg, wantKind, want)
	}
}

func TestWebSocketClientsShareTheRegistry(t *testing.T) {
	ws, err := listenWebSocket(websocketConfig{Listen: "127.0.0.1:0", Path: "/ws"})
	if err != nil {
		t.Fatalf("listenWebSocket: %v", err)
	}
	child := &fakeChild{}
	r := startRelay(t, child, ws)

	browser := dialWS(t, ws)
	waitClients(t, r, 1)
	if !child.running() {
		t.Fatal("a websocket client should resume the child")
	}

	tcp := dial(t, r.addr)
	waitClients(t, r, 2)

	r.say(t, "hi\n")
	readWS(t, browser, websocket.TextMessage, "hi\n")
	readExactly(t, tcp, "hi\n")

	r.say(t, "\xff\xfe\n")
	readWS(t, browser, websocket.BinaryMessage, "\xff\xfe\n")
	readExactly(t, tcp, "\xff\xfe\n")

	late := dialWS(t, ws)
	readWS(t, late, websocket.BinaryMessage, "\xff\xfe\n")
	waitClients(t, r, 3)

	browser.Close()
	late.Close()
	waitClients(t, r, 1)
	tcp.Close()
	waitClients(t, r, 0)
	if child.running() {
		t.Error("child should pause once every client is gone")
	}
}

func TestWebSocketWrongPathIsRejected(t *testing.T) {
	ws, err := listenWebSocket(websocketConfig{Listen: "127.0.0.1:0", Path: "/ws"})
	if err != nil {
		t.Fatalf("listenWebSocket: %v", err)
	}
	r := startRelay(t, nil, ws)

	url := "ws://" + ws.ln.Addr().String() + "/elsewhere"
	if conn, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		conn.Close()
		t.Fatal("expected the upgrade to fail off the configured path")
	}
	if got := int(r.count.Load()); got != 0 {
		t.Errorf("clients = %d, want 0", got)
	}
}
