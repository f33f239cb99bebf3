// manager.go

// Central event loop. The manager handles client registration,
// unregistration and payload broadcasting, and pauses the child while
// nobody is listening.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"
)

const (
	eventQueueSize = 64
	sendWarnBurst  = 5
)

func newClientManager(child childControl, writeTimeout time.Duration, log Logger) *ClientManager {
	return &ClientManager{
		events:       make(chan event, eventQueueSize),
		child:        child,
		writeTimeout: writeTimeout,
		log:          log,
		sendWarn:     rate.NewLimiter(rate.Every(time.Second), sendWarnBurst),
	}
}

// post hands ev to the loop. It reports false once ctx is done.
func (m *ClientManager) post(ctx context.Context, ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// run starts every source and processes their events one at a time
// until the console ends, a fatal error occurs or ctx is cancelled.
// Console end-of-input and cancellation return nil.
func (m *ClientManager) run(ctx context.Context, sources ...source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer m.closeAll()

	for _, s := range sources {
		m.log.Debug("source started", String("source", s.name()))
		go s.run(ctx, m)
	}

	for {
		select {
		case <-ctx.Done():
			m.log.Info("shutting down", String("reason", context.Cause(ctx).Error()))
			return nil
		case ev := <-m.events:
			if done, err := m.handle(ctx, ev); done {
				return err
			}
		}
	}
}

// handle processes one event. done reports that the loop must stop.
func (m *ClientManager) handle(ctx context.Context, ev event) (done bool, err error) {
	m.log.Trace("event", String("kind", ev.kind.String()), String("source", ev.source))
	switch ev.kind {
	case evAccept:
		m.register(ctx, ev.client)
	case evDisconnect:
		m.unregister(ev.client, ev.err)
	case evPayload:
		m.publish(ev.source, ev.data)
	case evSourceDone:
		return m.sourceDone(ev)
	case evFatal:
		m.log.Error("fatal error", String("source", ev.source), Err(ev.err))
		return true, ev.err
	}
	return false, nil
}

func (m *ClientManager) register(ctx context.Context, c *Client) {
	m.clients.add(c)
	n := m.clients.len()
	if n == 1 && m.child != nil {
		if err := m.child.resume(); err != nil {
			m.log.Warn("resuming command failed", Err(err))
		}
	}
	m.countChanged(n)
	m.log.Info(fmt.Sprintf("client %d connected: %s", n, c.remote),
		Int("client", n), String("id", c.id), String("transport", c.socket.transport()))

	go c.read(ctx, m)

	if len(m.last) > 0 {
		if err := c.socket.send(m.last, m.writeTimeout); err != nil {
			m.sendFailed(c, err)
			m.drop(c, err)
		}
	}
}

func (m *ClientManager) unregister(c *Client, cause error) {
	m.drop(c, cause)
}

// drop closes and deregisters c. Clients already removed are ignored,
// so each client is counted out exactly once.
func (m *ClientManager) drop(c *Client, cause error) {
	if !m.clients.remove(c) {
		return
	}
	_ = c.socket.close()

	n := m.clients.len()
	if n == 0 && m.child != nil {
		if err := m.child.pause(); err != nil {
			m.log.Warn("pausing command failed", Err(err))
		}
	}
	m.countChanged(n)

	fields := []Field{Int("client", n+1), String("id", c.id)}
	if cause != nil && !isExpectedCloseError(cause) {
		fields = append(fields, Err(cause))
	}
	m.log.Info(fmt.Sprintf("client %d disconnected", n+1), fields...)
}

func (m *ClientManager) publish(source string, payload []byte) {
	m.last = payload
	report := m.broadcast(payload)
	for _, f := range report.failed {
		m.drop(f.client, f.err)
	}
	m.log.Trace("broadcast",
		String("source", source),
		Int("bytes", len(payload)),
		Int("delivered", report.delivered),
		Int("failed", len(report.failed)))
}

func (m *ClientManager) sourceDone(ev event) (bool, error) {
	ended := ev.err == nil || errors.Is(ev.err, io.EOF)
	if ev.terminal {
		if ended {
			m.log.Info("end of input", String("source", ev.source))
			return true, nil
		}
		return true, withExitCode(exitUsage, fmt.Errorf("reading %s: %w", ev.source, ev.err))
	}
	if ended {
		m.log.Info("source closed", String("source", ev.source))
	} else {
		m.log.Warn("source failed", String("source", ev.source), Err(ev.err))
	}
	return false, nil
}

// closeAll disconnects every client on shutdown. The child is left to
// its owner.
func (m *ClientManager) closeAll() {
	for _, c := range m.clients.snapshot() {
		m.clients.remove(c)
		_ = c.socket.close()
	}
	m.countChanged(0)
}

func (m *ClientManager) countChanged(n int) {
	if m.onCount != nil {
		m.onCount(n)
	}
}
