//go:build unix

package shm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRegionSharesWords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "region")

	r1, err := MapRegion(ctx, MapOptions{Path: path, Size: 64, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(ctx, r1)

	r2, err := MapRegion(ctx, MapOptions{Path: path, Size: 64})
	require.NoError(t, err)
	defer UnmapRegion(ctx, r2)

	AtomicStoreUint64(r1.Word(8), 42)
	assert.Equal(t, uint64(42), AtomicLoadUint64(r2.Word(8)))

	assert.True(t, AtomicCompareAndSwapUint64(r2.Word(8), 42, 7))
	assert.False(t, AtomicCompareAndSwapUint64(r1.Word(8), 42, 9))
	assert.Equal(t, uint64(7), AtomicSwapUint64(r1.Word(8), 0))
	assert.Equal(t, uint64(0), AtomicLoadUint64(r2.Word(8)))
}

func TestMapRegionCreateIsExclusive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "region")

	r, err := MapRegion(ctx, MapOptions{Path: path, Size: 32, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(ctx, r)

	_, err = MapRegion(ctx, MapOptions{Path: path, Size: 32, Create: true})
	assert.Error(t, err)
}

func TestMapRegionRejectsShortFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "region")

	r, err := MapRegion(ctx, MapOptions{Path: path, Size: 16, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(ctx, r)

	_, err = MapRegion(ctx, MapOptions{Path: path, Size: 64})
	assert.Error(t, err)
}

func TestUnmapNilRegion(t *testing.T) {
	assert.NoError(t, UnmapRegion(context.Background(), nil))
}
