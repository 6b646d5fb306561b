package monitoring

import "log"

// Logf is the package-level diagnostic logger for the rally core. It
// defaults to log.Printf and may be replaced via SetLogger; the CLI
// redirects it to a run log, tests usually mute it. Per-frame hot-path
// code must not call Logf — frame telemetry goes through the pipeline
// event sink instead.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
