// Package provision brings named container resources up and down: it picks
// host ports, launches containers, waits for them to become ready and tears
// them down again, one resource at a time.
package provision

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultInterval = time.Second
)

// Reporter receives human-facing progress for each workflow step.
type Reporter interface {
	Step(title string)
	Success(format string, args ...any)
	Failure(format string, args ...any)
	Info(format string, args ...any)
}

// Env carries the collaborators shared by every component of a run.
type Env struct {
	Log      zerolog.Logger
	Reporter Reporter
	Timeout  time.Duration
	Interval time.Duration
}

func (e Env) reporter() Reporter {
	if e.Reporter == nil {
		return nopReporter{}
	}
	return e.Reporter
}

func (e Env) timeouts() (time.Duration, time.Duration) {
	timeout, interval := e.Timeout, e.Interval
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return timeout, interval
}

type nopReporter struct{}

func (nopReporter) Step(string)            {}
func (nopReporter) Success(string, ...any) {}
func (nopReporter) Failure(string, ...any) {}
func (nopReporter) Info(string, ...any)    {}

var _ Reporter = nopReporter{}
