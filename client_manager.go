// client_manager.go
package main

import (
	"time"

	"golang.org/x/time/rate"
)

// ClientManager owns the connected clients, the last broadcast payload
// and the child process. All of it is touched only by the loop goroutine
// in run.
type ClientManager struct {
	clients clientSet
	last    []byte
	events  chan event

	child        childControl
	writeTimeout time.Duration
	log          Logger

	// sendWarn throttles per-recipient send failure warnings.
	sendWarn   *rate.Limiter
	suppressed int

	// onCount, when set, is called from the loop with the new client
	// count after every registration and deregistration.
	onCount func(n int)
}

// Client represents a single connection: TCP or WebSocket.
type Client struct {
	id     string
	remote string
	socket clientConn
}

// clientConn is the transport beneath a Client. send is called only from
// the loop goroutine; recv only from the client's reader goroutine.
type clientConn interface {
	send(p []byte, timeout time.Duration) error
	// recv blocks until the peer sends something and returns an error
	// once it has gone away.
	recv() error
	close() error
	transport() string
}

// childControl pauses and resumes the child process.
type childControl interface {
	pause() error
	resume() error
}

// clientSet keeps clients in registration order.
type clientSet struct {
	order   []*Client
	members map[*Client]struct{}
}

func (s *clientSet) add(c *Client) {
	if s.members == nil {
		s.members = make(map[*Client]struct{})
	}
	s.members[c] = struct{}{}
	s.order = append(s.order, c)
}

func (s *clientSet) has(c *Client) bool {
	_, ok := s.members[c]
	return ok
}

func (s *clientSet) remove(c *Client) bool {
	if !s.has(c) {
		return false
	}
	delete(s.members, c)
	for i, x := range s.order {
		if x == c {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *clientSet) len() int { return len(s.order) }

// snapshot returns the current members in registration order.
func (s *clientSet) snapshot() []*Client {
	return append([]*Client(nil), s.order...)
}

type eventKind int

const (
	evAccept eventKind = iota
	evDisconnect
	evPayload
	evSourceDone
	evFatal
)

func (k eventKind) String() string {
	switch k {
	case evAccept:
		return "accept"
	case evDisconnect:
		return "disconnect"
	case evPayload:
		return "payload"
	case evSourceDone:
		return "source-done"
	case evFatal:
		return "fatal"
	}
	return "unknown"
}

// event is one unit of work for the loop.
type event struct {
	kind   eventKind
	source string
	client *Client
	data   []byte
	err    error

	// terminal marks a source whose end stops the relay.
	terminal bool
}
