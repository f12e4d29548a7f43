// Package log constructs the two logger flavors used across this module:
// charmbracelet/log for the participant-facing executor and the ddsping
// demo, and op/go-logging for the discovery packages. This mirrors
// the split already present in the corpus this module was grown from.
package log

import (
	"os"

	"github.com/charmbracelet/log"
	logging "gopkg.in/op/go-logging.v1"
)

// NewClientLogger returns a charmbracelet/log logger prefixed for a
// client/participant-facing component.
func NewClientLogger(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
	})
}

var backendOnce = func() func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		backend := logging.NewLogBackend(os.Stderr, "", 0)
		formatter := logging.MustStringFormatter(
			`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
		)
		logging.SetBackend(logging.NewBackendFormatter(backend, formatter))
	}
}()

// NewEngineLogger returns an op/go-logging logger for a protocol-engine
// package (discovery/*).
func NewEngineLogger(module string) *logging.Logger {
	backendOnce()
	return logging.MustGetLogger(module)
}
