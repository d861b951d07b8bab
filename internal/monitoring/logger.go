// Package monitoring holds the package-level diagnostic logger shared by the
// dataset, annotation and conversion packages.
package monitoring

import "log"

// Logf defaults to log.Printf. Tests and tools may redirect or mute it with
// SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
