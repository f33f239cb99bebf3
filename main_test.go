package main

import (
	"context"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func testConfig(command ...string) Config {
	cfg := defaultConfig()
	cfg.Port = "0"
	cfg.Command = command
	return cfg
}

func serveApp(t *testing.T, a *app) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done, stopped := make(chan error, 1), make(chan struct{})
	go func() {
		done <- a.serve(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(testTimeout):
		}
		a.close()
	})
	return cancel, done
}

func loopbackAddr(t *testing.T, ln net.Listener) string {
	t.Helper()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("listener addr: %v", err)
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func TestAppWithoutCommandStopsAtEndOfStdin(t *testing.T) {
	a, err := newApp(testConfig(), strings.NewReader(""), nopLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	_, done := serveApp(t, a)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve = %v, want nil", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("relay kept running after stdin ended")
	}
}

func TestAppWithCommandOutlivesEmptyStdin(t *testing.T) {
	if !jobControlSupported {
		t.Skip("no job control on this platform")
	}
	if _, err := exec.LookPath("yes"); err != nil {
		t.Skip("yes not installed")
	}

	a, err := newApp(testConfig("yes"), strings.NewReader(""), nopLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	cancel, done := serveApp(t, a)

	select {
	case err := <-done:
		t.Fatalf("relay stopped on empty stdin: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	c := dial(t, loopbackAddr(t, a.ln))
	readExactly(t, c, "y\n")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve = %v, want nil after cancel", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("relay did not stop on cancel")
	}
}
