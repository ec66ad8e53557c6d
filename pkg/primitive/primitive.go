// Package primitive provides named, OS-visible mutual-exclusion primitives
// implementing api.Opener.
//
// On Windows a primitive is a named kernel mutex. On unix systems it is a file
// under Options.Dir locked with flock(2), paired with a memory-mapped record
// that remembers the owning handle so that a handle closed while owning the
// lock, or a process that dies holding it, is reported as api.Abandoned to
// the next acquirer.
package primitive

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/srediag/mutexchan/api"
)

// DefaultPollInterval is how often bounded and infinite waits re-check a
// held primitive on platforms without a native timed wait.
const DefaultPollInterval = 250 * time.Microsecond

// Options configures an Opener.
type Options struct {
	// Dir holds primitive files on unix. Defaults to DefaultDir().
	Dir string
	// PollInterval is the re-check period of waiting acquires.
	PollInterval time.Duration
	Logger       *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = DefaultDir()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// DefaultDir returns /dev/shm when present, the temp dir otherwise.
func DefaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// live tracks primitives created by this process, keyed by their OS name.
var live = cmap.New[uint64]()

// Live returns the OS names of primitives this process created and still holds open.
func Live() []string {
	return live.Keys()
}

var serial atomic.Uint32

// newToken identifies one handle: the process id in the high word and a
// per-process serial in the low word.
func newToken() uint64 {
	return uint64(uint32(os.Getpid()))<<32 | uint64(serial.Add(1))
}

func tokenPID(token uint64) int32 {
	return int32(token >> 32)
}

// processAlive reports whether the process that minted token still runs.
// Lookup failures count as alive so that a live peer is never robbed.
func processAlive(token uint64) bool {
	pid := tokenPID(token)
	if pid == int32(os.Getpid()) {
		return true
	}
	ok, err := process.PidExists(pid)
	if err != nil {
		return true
	}
	return ok
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", api.ErrInvalidName, name)
	}
	return nil
}
