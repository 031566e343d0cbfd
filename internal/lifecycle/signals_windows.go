//go:build windows

package lifecycle

import "os"

// TerminationSignals are the signals that end a cast. Ctrl+C and Ctrl+Break
// both arrive as os.Interrupt.
func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
