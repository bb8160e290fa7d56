// Package lifecycle holds the process-wide shutdown flag. The dashboard keeps
// polling /health, so the flag lets the health endpoint flip to 503 the moment
// a shutdown signal arrives, before the listener closes.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown flips the shutdown flag. main sets it on SIGTERM/SIGINT.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not
// receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
