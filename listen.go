package main

import (
	"errors"
	"net"
	"syscall"
)

// listenTCP opens the dual-stack listening endpoint for port. Errors
// carry the exit code for the failure class.
func listenTCP(port string) (net.Listener, error) {
	addr := net.JoinHostPort("", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, listenError(addr, err)
	}
	return ln, nil
}

func listenError(addr string, err error) error {
	var dnsErr *net.DNSError
	var addrErr *net.AddrError
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &addrErr):
		return exitErrorf(exitUsage, "resolving %s: %w", addr, err)
	case errors.Is(err, syscall.EADDRINUSE), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EADDRNOTAVAIL):
		return exitErrorf(exitBind, "failed to bind %s: %w", addr, err)
	default:
		return exitErrorf(exitListen, "listen on %s: %w", addr, err)
	}
}
