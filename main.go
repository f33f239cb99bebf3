// main.go
// In main.go we wire everything together: parse the configuration, start
// the optional command paused, open the listeners and hand every input
// source to the manager loop. Without a command the loop runs until
// standard input ends; with one, until it is stopped.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(exitOK)
		}
		fmt.Fprintf(os.Stderr, "broadcat: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(args []string) error {
	cfg, err := parseArgs(args, os.Getenv, os.Stderr)
	if err != nil {
		return err
	}

	logs, log := newLogService(cfg.Log)
	defer logs.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, os.Stdin, log)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.path != "" {
		go func() {
			if err := watchConfig(ctx, cfg, log.With(String("comp", "config")), logs.Apply); err != nil {
				log.Warn("config watch unavailable", String("path", cfg.path), Err(err))
			}
		}()
	}

	a.manager.onCount = func(n int) {
		notifyServiceManager(log, fmt.Sprintf("STATUS=%d clients connected", n))
	}
	notifyServiceManager(log, daemon.SdNotifyReady)
	defer notifyServiceManager(log, daemon.SdNotifyStopping)

	return a.serve(ctx)
}

// app is the wired relay: the optional command, the listeners and the
// manager loop with all of its sources.
type app struct {
	manager *ClientManager
	child   *childProcess
	ln      net.Listener
	sources []source
}

// newApp starts the command (paused) and opens the listeners. With a
// command its output is the feed, so the end of stdin does not stop the
// relay; only a signal does.
func newApp(cfg Config, stdin io.Reader, log Logger) (*app, error) {
	a := &app{}
	var child childControl
	if len(cfg.Command) > 0 {
		proc, out, err := startChild(cfg.Command, log.With(String("comp", "child")))
		if err != nil {
			return nil, withExitCode(exitUsage, err)
		}
		a.child = proc
		child = proc
		output := newLineSource("child", out, cfg.BufferSize, false)
		output.closer = out
		output.gate = proc.firstResume()
		a.sources = append(a.sources, output)
	}

	ln, err := listenTCP(cfg.Port)
	if err != nil {
		a.close()
		return nil, err
	}
	a.ln = ln
	a.sources = append(a.sources,
		newLineSource("console", stdin, cfg.BufferSize, a.child == nil),
		&tcpSource{ln: ln})
	log.Info("listening", String("addr", ln.Addr().String()), Bool("command", a.child != nil))

	if cfg.WebSocket.Listen != "" {
		ws, err := listenWebSocket(cfg.WebSocket)
		if err != nil {
			_ = ln.Close()
			a.close()
			return nil, err
		}
		a.sources = append(a.sources, ws)
		log.Info("listening for websocket clients", String("addr", ws.ln.Addr().String()), String("path", ws.path))
	}

	a.manager = newClientManager(child, cfg.WriteTimeout, log.With(String("comp", "relay")))
	return a, nil
}

func (a *app) serve(ctx context.Context) error {
	return a.manager.run(ctx, a.sources...)
}

// close kills the command, if any.
func (a *app) close() {
	if a.child != nil {
		a.child.close()
	}
}

// notifyServiceManager reports state to systemd when running under it.
func notifyServiceManager(log Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Debug("service manager notify failed", String("state", state), Err(err))
		return
	}
	if sent {
		log.Debug("service manager notified", String("state", state))
	}
}
