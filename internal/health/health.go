// Package health contains liveness and readiness checks for a mutexchan process.
package health

import (
	"fmt"
	"os"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/mutexchan/pkg/mutexchan"
)

const defaultMaxGoroutines = 256

// Options describe what the checks look at.
type Options struct {
	// MaxGoroutines fails liveness when exceeded.
	MaxGoroutines int
	// State reports the phase of the running session, if any.
	State func() mutexchan.State
	// Dir is the primitive directory that must exist for readiness. Empty skips the check.
	Dir string
}

// New returns a handler serving /live and /ready. Check results are exported
// to reg when it is not nil.
func New(reg prometheus.Registerer, opts Options) healthcheck.Handler {
	if opts.MaxGoroutines <= 0 {
		opts.MaxGoroutines = defaultMaxGoroutines
	}
	var h healthcheck.Handler
	if reg != nil {
		h = healthcheck.NewMetricsHandler(reg, "mutexchan")
	} else {
		h = healthcheck.NewHandler()
	}
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))
	if opts.State != nil {
		h.AddReadinessCheck("session", SessionCheck(opts.State))
	}
	if opts.Dir != "" {
		h.AddReadinessCheck("primitive-dir", DirCheck(opts.Dir))
	}
	return h
}

// SessionCheck fails once the session has aborted.
func SessionCheck(state func() mutexchan.State) healthcheck.Check {
	return func() error {
		if s := state(); s == mutexchan.StateAborted {
			return fmt.Errorf("session %v", s)
		}
		return nil
	}
}

// DirCheck fails when dir is missing or not a directory.
func DirCheck(dir string) healthcheck.Check {
	return func() error {
		fi, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}
}
