//go:build unix

package primitive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/srediag/mutexchan/api"
	"github.com/srediag/mutexchan/internal/shm"
)

// record layout, one 8-byte word each.
const (
	magicOffset   = 0
	creatorOffset = 8
	ownerOffset   = 16
	waiterOffset  = 24
	recordSize    = 32

	recordMagic uint64 = 0x314e414843585446 // "FTXCHAN1"
	filePrefix         = "mutexchan-"
)

var errStillHeld = errors.New("primitive still held")

type flockOpener struct {
	opts Options
}

// NewOpener returns the platform Opener.
func NewOpener(opts Options) api.Opener {
	return &flockOpener{opts: opts.withDefaults()}
}

func (o *flockOpener) path(name string) string {
	return filepath.Join(o.opts.Dir, filePrefix+name)
}

func (o *flockOpener) Create(ctx context.Context, name string) (api.Primitive, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	path := o.path(name)
	m := &flockMutex{
		name:    name,
		path:    path,
		token:   newToken(),
		creator: true,
		opts:    o.opts,
		log:     o.opts.Logger.With(zap.String("primitive", name)),
	}
	if !live.SetIfAbsent(path, m.token) {
		return nil, fmt.Errorf("%w: %s", api.ErrExists, name)
	}
	region, err := o.publish(ctx, path, m.token)
	if err != nil {
		live.Remove(path)
		return nil, err
	}
	m.region = region
	m.owned = true
	m.log.Debug("primitive created", zap.String("path", path))
	return m, nil
}

// publish initialises a locked record under a private name and links it into
// place, so an opener never observes a half-written record.
func (o *flockOpener) publish(ctx context.Context, path string, token uint64) (*shm.MappedRegion, error) {
	tmp := fmt.Sprintf("%s.%x.tmp", path, token)
	region, err := shm.MapRegion(ctx, shm.MapOptions{Path: tmp, Size: recordSize, Create: true})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = unix.Unlink(tmp) }()

	if err := flock(region.Fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = shm.UnmapRegion(ctx, region)
		return nil, fmt.Errorf("lock %s: %w", tmp, err)
	}
	shm.AtomicStoreUint64(region.Word(creatorOffset), token)
	shm.AtomicStoreUint64(region.Word(ownerOffset), token)
	shm.AtomicStoreUint64(region.Word(waiterOffset), 0)
	shm.AtomicStoreUint64(region.Word(magicOffset), recordMagic)

	for attempt := 0; ; attempt++ {
		err = unix.Link(tmp, path)
		if err == nil {
			return region, nil
		}
		if errors.Is(err, unix.EEXIST) && attempt == 0 && o.reclaim(ctx, path) {
			continue
		}
		_ = shm.UnmapRegion(ctx, region)
		if errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("%w: %s", api.ErrExists, path)
		}
		return nil, fmt.Errorf("link %s: %w", path, err)
	}
}

// reclaim removes a primitive file left behind by a creator that no longer
// runs. It reports whether path is free for a new primitive.
func (o *flockOpener) reclaim(ctx context.Context, path string) bool {
	region, err := shm.MapRegion(ctx, shm.MapOptions{Path: path, Size: recordSize})
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return true
		}
		o.opts.Logger.Warn("cannot inspect existing primitive", zap.String("path", path), zap.Error(err))
		return false
	}
	defer func() { _ = shm.UnmapRegion(ctx, region) }()

	if err := flock(region.Fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return false
	}
	defer func() { _ = flock(region.Fd, unix.LOCK_UN) }()

	creator := shm.AtomicLoadUint64(region.Word(creatorOffset))
	if shm.AtomicLoadUint64(region.Word(magicOffset)) == recordMagic && processAlive(creator) {
		return false
	}
	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return false
	}
	o.opts.Logger.Warn("reclaimed stale primitive", zap.String("path", path), zap.Int32("creator_pid", tokenPID(creator)))
	return true
}

func (o *flockOpener) Open(ctx context.Context, name string) (api.Primitive, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	path := o.path(name)
	region, err := shm.MapRegion(ctx, shm.MapOptions{Path: path, Size: recordSize})
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%w: %s", api.ErrNotFound, name)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if shm.AtomicLoadUint64(region.Word(magicOffset)) != recordMagic {
		_ = shm.UnmapRegion(ctx, region)
		return nil, fmt.Errorf("open %s: not a primitive record", path)
	}
	return &flockMutex{
		name:   name,
		path:   path,
		token:  newToken(),
		region: region,
		opts:   o.opts,
		log:    o.opts.Logger.With(zap.String("primitive", name)),
	}, nil
}

func (o *flockOpener) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := unix.Unlink(o.path(name)); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

type flockMutex struct {
	mu      sync.Mutex
	name    string
	path    string
	token   uint64
	creator bool
	owned   bool
	closed  bool
	region  *shm.MappedRegion
	opts    Options
	log     *zap.Logger
}

func (m *flockMutex) Name() string { return m.name }

func (m *flockMutex) Acquire(ctx context.Context, timeout api.Timeout) (api.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, api.ErrClosed
	}
	if m.owned {
		return api.Acquired, nil
	}
	if timeout.IsZero() {
		return m.try(false)
	}
	waiter := false
	if timeout.IsInfinite() {
		waiter = m.enqueue()
		if waiter {
			defer shm.AtomicCompareAndSwapUint64(m.region.Word(waiterOffset), m.token, 0)
		}
	}
	return m.poll(ctx, timeout, waiter)
}

func (m *flockMutex) poll(ctx context.Context, timeout api.Timeout, waiter bool) (api.Outcome, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.PollInterval
	b.MaxInterval = m.opts.PollInterval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if !timeout.IsInfinite() {
		b.MaxElapsedTime = timeout.Duration()
	}

	var out api.Outcome
	err := backoff.Retry(func() error {
		o, err := m.try(waiter)
		if err != nil {
			return backoff.Permanent(err)
		}
		if o == api.Held {
			return errStillHeld
		}
		out = o
		return nil
	}, backoff.WithContext(b, ctx))
	switch {
	case errors.Is(err, errStillHeld):
		return api.Held, nil
	case err != nil:
		return 0, err
	}
	return out, nil
}

// enqueue claims the waiter slot, taking it over from a dead process if needed.
func (m *flockMutex) enqueue() bool {
	slot := m.region.Word(waiterOffset)
	if shm.AtomicCompareAndSwapUint64(slot, 0, m.token) {
		return true
	}
	w := shm.AtomicLoadUint64(slot)
	return !processAlive(w) && shm.AtomicCompareAndSwapUint64(slot, w, m.token)
}

// yield reports whether a live infinite waiter other than m is queued.
// Such a waiter gets the primitive before any zero or bounded attempt.
func (m *flockMutex) yield() bool {
	slot := m.region.Word(waiterOffset)
	w := shm.AtomicLoadUint64(slot)
	if w == 0 || w == m.token {
		return false
	}
	if !processAlive(w) {
		shm.AtomicCompareAndSwapUint64(slot, w, 0)
		return false
	}
	return true
}

func (m *flockMutex) try(waiter bool) (api.Outcome, error) {
	if !waiter && m.yield() {
		return api.Held, nil
	}
	if err := flock(m.region.Fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return api.Held, nil
		}
		return 0, fmt.Errorf("lock %s: %w", m.name, err)
	}
	m.owned = true
	prev := shm.AtomicSwapUint64(m.region.Word(ownerOffset), m.token)
	if prev != 0 && prev != m.token {
		m.log.Debug("primitive abandoned by previous owner", zap.Int32("owner_pid", tokenPID(prev)))
		return api.Abandoned, nil
	}
	return api.Acquired, nil
}

func (m *flockMutex) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return api.ErrClosed
	}
	if !m.owned {
		return api.ErrNotOwner
	}
	shm.AtomicStoreUint64(m.region.Word(ownerOffset), 0)
	if err := flock(m.region.Fd, unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", m.name, err)
	}
	m.owned = false
	return nil
}

// Close keeps the owner word when the handle still owns the primitive: the
// kernel drops the lock with the descriptor and the next acquirer sees the
// stale owner as abandonment.
func (m *flockMutex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	shm.AtomicCompareAndSwapUint64(m.region.Word(waiterOffset), m.token, 0)
	if m.owned {
		m.log.Debug("closing owned primitive")
	}
	if m.creator {
		live.RemoveCb(m.path, func(_ string, v uint64, exists bool) bool {
			return exists && v == m.token
		})
	}
	return shm.UnmapRegion(context.Background(), m.region)
}

func flock(fd, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
