package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

const childKillGrace = 2 * time.Second

// childProcess is the optional command whose output is relayed. It is
// stopped right after it starts and only runs while clients are
// connected.
type childProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	log  Logger

	// resumed is closed by the first successful resume.
	resumed     chan struct{}
	resumedOnce sync.Once
}

// startChild runs argv with its standard output on a fresh pipe and
// returns the read end. The child starts paused. Its standard input is
// the null device and its standard error is shared with ours.
func startChild(argv []string, log Logger) (*childProcess, io.ReadCloser, error) {
	if len(argv) == 0 {
		return nil, nil, errors.New("no command given")
	}
	if !jobControlSupported {
		return nil, nil, fmt.Errorf("pausing a command is not supported on %s", runtime.GOOS)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating pipe: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	// The child holds its own copy; ours must go so EOF arrives when it exits.
	pw.Close()

	p := &childProcess{
		cmd:     cmd,
		done:    make(chan struct{}),
		log:     log.With(Int("pid", cmd.Process.Pid)),
		resumed: make(chan struct{}),
	}
	go p.wait()

	if err := p.pause(); err != nil {
		p.log.Warn("pausing new command failed", Err(err))
	}
	p.log.Info("command started", Strs("argv", argv))
	return p, pr, nil
}

func (p *childProcess) wait() {
	err := p.cmd.Wait()
	if err != nil {
		p.log.Warn("command exited", Err(err))
	} else {
		p.log.Info("command exited")
	}
	close(p.done)
}

func (p *childProcess) pause() error {
	if err := p.cmd.Process.Signal(stopSignal); err != nil {
		return fmt.Errorf("stopping pid %d: %w", p.cmd.Process.Pid, err)
	}
	p.log.Debug("command paused")
	return nil
}

func (p *childProcess) resume() error {
	if err := p.cmd.Process.Signal(continueSignal); err != nil {
		return fmt.Errorf("continuing pid %d: %w", p.cmd.Process.Pid, err)
	}
	p.resumedOnce.Do(func() { close(p.resumed) })
	p.log.Debug("command resumed")
	return nil
}

// firstResume is closed once the child has been resumed for the first
// time. Output written before then, between start and the initial stop,
// is left in the pipe until a client is there to receive it.
func (p *childProcess) firstResume() <-chan struct{} { return p.resumed }

// exited reports whether the child has been reaped.
func (p *childProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// close kills the child, continuing it first so a stopped process
// handles the kill, and waits briefly for it to be reaped.
func (p *childProcess) close() {
	if p.exited() {
		return
	}
	_ = p.cmd.Process.Signal(continueSignal)
	if err := p.cmd.Process.Signal(killSignal); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Warn("killing command failed", Err(err))
	}
	select {
	case <-p.done:
	case <-time.After(childKillGrace):
		p.log.Warn("command did not exit after kill")
	}
}
