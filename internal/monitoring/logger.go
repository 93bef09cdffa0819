// Package monitoring holds the diagnostic logger shared by the estimation
// packages. Library code logs through Logf so binaries and tests can
// redirect or mute it without touching the global log package.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose enables or disables per-tick tracing through Debugf.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Verbose reports whether per-tick tracing is enabled.
func Verbose() bool {
	return verbose.Load()
}

// Debugf logs through Logf only when verbose tracing is enabled.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}
