package main

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// source is one input of the loop. run posts events until the source is
// exhausted or ctx is done.
type source interface {
	name() string
	run(ctx context.Context, m *ClientManager)
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// tcpSource accepts TCP clients.
type tcpSource struct {
	ln net.Listener
}

func (s *tcpSource) name() string { return "tcp " + s.ln.Addr().String() }

func (s *tcpSource) run(ctx context.Context, m *ClientManager) {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	var delay time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				m.post(ctx, event{kind: evFatal, source: s.name(), err: exitErrorf(exitWait, "listener closed: %w", err)})
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			m.log.Warn("accept failed", Err(err), Duration("retry_in", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = 0
		if !m.post(ctx, event{kind: evAccept, source: "tcp", client: newTCPClient(conn)}) {
			_ = conn.Close()
			return
		}
	}
}

// lineSource turns a byte stream into payload events, one bounded line
// each. When terminal is set its end stops the relay. When gate is set
// nothing is read until it is closed.
type lineSource struct {
	label    string
	r        *lineReader
	closer   io.Closer
	terminal bool
	gate     <-chan struct{}
}

func newLineSource(label string, r io.Reader, size int, terminal bool) *lineSource {
	return &lineSource{label: label, r: newLineReader(r, size), terminal: terminal}
}

func (s *lineSource) name() string { return s.label }

func (s *lineSource) run(ctx context.Context, m *ClientManager) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return
		}
	}
	for {
		data, err := s.r.next()
		if len(data) > 0 {
			if !m.post(ctx, event{kind: evPayload, source: s.label, data: data}) {
				return
			}
		}
		if err != nil {
			if s.closer != nil {
				_ = s.closer.Close()
			}
			m.post(ctx, event{kind: evSourceDone, source: s.label, err: err, terminal: s.terminal})
			return
		}
	}
}
