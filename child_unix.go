//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

const jobControlSupported = true

var (
	stopSignal     os.Signal = unix.SIGSTOP
	continueSignal os.Signal = unix.SIGCONT
	killSignal     os.Signal = unix.SIGKILL
)
