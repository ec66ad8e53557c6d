//go:build windows

package primitive

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/srediag/mutexchan/api"
)

const (
	mutexModifyState = 0x0001
	waitTimeout      = 0x00000102

	// infiniteSlice bounds each native wait of an infinite acquire so that
	// context cancellation is noticed.
	infiniteSlice = 50 * time.Millisecond
)

type mutexOpener struct {
	opts Options
}

// NewOpener returns the platform Opener.
func NewOpener(opts Options) api.Opener {
	return &mutexOpener{opts: opts.withDefaults()}
}

func (o *mutexOpener) Create(ctx context.Context, name string) (api.Primitive, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrInvalidName, err)
	}
	m := startMutex(name, o.opts.Logger)
	if !live.SetIfAbsent(name, m.token) {
		m.stop()
		return nil, fmt.Errorf("%w: %s", api.ErrExists, name)
	}
	var h windows.Handle
	m.do(func() { h, err = windows.CreateMutex(nil, true, p) })
	if err != nil {
		if h != 0 {
			m.do(func() { _ = windows.CloseHandle(h) })
		}
		m.stop()
		live.Remove(name)
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			return nil, fmt.Errorf("%w: %s", api.ErrExists, name)
		}
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	m.h = h
	m.owned = true
	m.creator = true
	return m, nil
}

func (o *mutexOpener) Open(ctx context.Context, name string) (api.Primitive, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrInvalidName, err)
	}
	m := startMutex(name, o.opts.Logger)
	var h windows.Handle
	m.do(func() { h, err = windows.OpenMutex(windows.SYNCHRONIZE|mutexModifyState, false, p) })
	if err != nil {
		m.stop()
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
			return nil, fmt.Errorf("%w: %s", api.ErrNotFound, name)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	m.h = h
	return m, nil
}

// Remove is a no-op: the kernel destroys the mutex with its last handle.
func (o *mutexOpener) Remove(name string) error {
	return validName(name)
}

// winMutex runs every kernel call on one locked OS thread because mutex
// ownership belongs to the thread that acquired it.
type winMutex struct {
	mu      sync.Mutex
	name    string
	token   uint64
	h       windows.Handle
	ops     chan func()
	owned   bool
	creator bool
	closed  bool
	log     *zap.Logger
}

func startMutex(name string, log *zap.Logger) *winMutex {
	m := &winMutex{
		name:  name,
		token: newToken(),
		ops:   make(chan func()),
		log:   log.With(zap.String("primitive", name)),
	}
	go m.loop()
	return m
}

// loop exits without unlocking the OS thread when the mutex is still owned.
// The runtime then terminates the thread and the kernel marks the mutex
// abandoned, exactly as if the process had died.
func (m *winMutex) loop() {
	runtime.LockOSThread()
	for op := range m.ops {
		op()
	}
	if !m.owned {
		runtime.UnlockOSThread()
	}
}

func (m *winMutex) do(f func()) {
	done := make(chan struct{})
	m.ops <- func() {
		f()
		close(done)
	}
	<-done
}

func (m *winMutex) stop() { close(m.ops) }

func (m *winMutex) Name() string { return m.name }

func (m *winMutex) Acquire(ctx context.Context, timeout api.Timeout) (api.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, api.ErrClosed
	}
	if m.owned {
		return api.Acquired, nil
	}
	if !timeout.IsInfinite() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return m.wait(uint32(timeout.Duration().Milliseconds()))
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		out, err := m.wait(uint32(infiniteSlice.Milliseconds()))
		if err != nil || out != api.Held {
			return out, err
		}
	}
}

func (m *winMutex) wait(ms uint32) (api.Outcome, error) {
	var (
		ev  uint32
		err error
	)
	m.do(func() { ev, err = windows.WaitForSingleObject(m.h, ms) })
	switch ev {
	case windows.WAIT_OBJECT_0:
		m.owned = true
		return api.Acquired, nil
	case windows.WAIT_ABANDONED:
		m.owned = true
		m.log.Debug("primitive abandoned by previous owner")
		return api.Abandoned, nil
	case waitTimeout:
		return api.Held, nil
	}
	return 0, fmt.Errorf("wait %s: %w", m.name, err)
}

func (m *winMutex) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return api.ErrClosed
	}
	if !m.owned {
		return api.ErrNotOwner
	}
	var err error
	m.do(func() { err = windows.ReleaseMutex(m.h) })
	if err != nil {
		return fmt.Errorf("release %s: %w", m.name, err)
	}
	m.owned = false
	return nil
}

func (m *winMutex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var err error
	m.do(func() { err = windows.CloseHandle(m.h) })
	m.stop()
	if m.creator {
		live.RemoveCb(m.name, func(_ string, v uint64, exists bool) bool {
			return exists && v == m.token
		})
	}
	if err != nil {
		return fmt.Errorf("close %s: %w", m.name, err)
	}
	return nil
}
