package main

import (
	"errors"
	"syscall"
	"testing"
)

func TestBroadcast(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		failing       []bool
		wantDelivered int
		wantFailed    int
	}{
		{name: "no clients", payload: "a\n"},
		{name: "all delivered", payload: "a\n", failing: []bool{false, false, false}, wantDelivered: 3},
		{name: "failure isolated", payload: "a\n", failing: []bool{false, true, false}, wantDelivered: 2, wantFailed: 1},
		{name: "empty payload skips writes", payload: "", failing: []bool{false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newClientManager(nil, 0, nopLogger())
			conns := make([]*fakeConn, len(tt.failing))
			for i, fail := range tt.failing {
				conns[i] = newFakeConn()
				if fail {
					conns[i].failErr = syscall.EPIPE
				}
				m.clients.add(fakeClient("c", conns[i]))
			}

			report := m.broadcast([]byte(tt.payload))
			if report.delivered != tt.wantDelivered {
				t.Errorf("delivered = %d, want %d", report.delivered, tt.wantDelivered)
			}
			if len(report.failed) != tt.wantFailed {
				t.Errorf("failed = %d, want %d", len(report.failed), tt.wantFailed)
			}
			for i, c := range conns {
				got := c.received()
				if tt.failing[i] || tt.payload == "" {
					if len(got) != 0 {
						t.Errorf("client %d got %q, want nothing", i, got)
					}
					continue
				}
				if len(got) != 1 || string(got[0]) != tt.payload {
					t.Errorf("client %d got %q, want %q", i, got, tt.payload)
				}
			}
		})
	}
}

func TestBroadcastDoesNotDeregister(t *testing.T) {
	m := newClientManager(nil, 0, nopLogger())
	conn := newFakeConn()
	conn.failErr = syscall.ECONNRESET
	m.clients.add(fakeClient("c", conn))

	report := m.broadcast([]byte("x\n"))
	if len(report.failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(report.failed))
	}
	if m.clients.len() != 1 {
		t.Errorf("broadcast removed a client; deregistration belongs to the caller")
	}
}

func TestEmptyPayloadUpdatesCache(t *testing.T) {
	m := newClientManager(nil, 0, nopLogger())
	m.publish("console", []byte("first\n"))
	m.publish("console", []byte{})
	if len(m.last) != 0 {
		t.Errorf("cache = %q, want empty", m.last)
	}
}

func TestSendFailureWarningsAreThrottled(t *testing.T) {
	m := newClientManager(nil, 0, nopLogger())
	c := fakeClient("c", newFakeConn())

	for i := 0; i < sendWarnBurst+5; i++ {
		m.sendFailed(c, errors.New("write: no buffer space available"))
	}
	if m.suppressed != 5 {
		t.Errorf("suppressed = %d, want 5", m.suppressed)
	}

	// Expected close errors never consume the budget.
	before := m.suppressed
	m.sendFailed(c, syscall.EPIPE)
	if m.suppressed != before {
		t.Errorf("expected close error was counted as suppressed")
	}
}

func TestClientSetKeepsRegistrationOrder(t *testing.T) {
	var s clientSet
	a, b, c := fakeClient("a", newFakeConn()), fakeClient("b", newFakeConn()), fakeClient("c", newFakeConn())
	s.add(a)
	s.add(b)
	s.add(c)

	if !s.remove(b) {
		t.Fatal("remove(b) = false")
	}
	if s.remove(b) {
		t.Fatal("second remove(b) = true")
	}

	got := s.snapshot()
	if len(got) != 2 || got[0] != a || got[1] != c {
		t.Fatalf("snapshot ids = %v", ids(got))
	}

	// A snapshot is not affected by later changes.
	s.add(b)
	if len(got) != 2 {
		t.Errorf("snapshot changed after add")
	}
}

func ids(cs []*Client) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.id
	}
	return out
}
