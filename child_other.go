//go:build !unix

package main

import "os"

// Without stop/continue signals a command cannot be paused, so
// startChild refuses to run one.
const jobControlSupported = false

var (
	stopSignal     os.Signal = os.Kill
	continueSignal os.Signal = os.Kill
	killSignal     os.Signal = os.Kill
)
