//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

// TerminationSignals are the signals that end a cast. SIGHUP is included so
// closing the terminal still stops the renderer and kills the encoder.
func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}
