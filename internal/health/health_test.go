package health

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/mutexchan/pkg/mutexchan"
)

func status(h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestReadinessFollowsSession(t *testing.T) {
	var state atomic.Int32
	h := New(prometheus.NewRegistry(), Options{
		State: func() mutexchan.State { return mutexchan.State(state.Load()) },
		Dir:   t.TempDir(),
	})

	assert.Equal(t, http.StatusOK, status(h, "/live"))
	assert.Equal(t, http.StatusOK, status(h, "/ready"))

	state.Store(int32(mutexchan.StateStreaming))
	assert.Equal(t, http.StatusOK, status(h, "/ready"))

	state.Store(int32(mutexchan.StateAborted))
	assert.Equal(t, http.StatusServiceUnavailable, status(h, "/ready"))
	assert.Equal(t, http.StatusOK, status(h, "/live"))
}

func TestDirCheck(t *testing.T) {
	require.NoError(t, DirCheck(t.TempDir())())
	require.Error(t, DirCheck(filepath.Join(t.TempDir(), "missing"))())
}

func TestNewWithoutRegistry(t *testing.T) {
	h := New(nil, Options{})
	assert.Equal(t, http.StatusOK, status(h, "/ready"))
}
