package main

import (
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/srediag/mutexchan/internal/config"
	"github.com/srediag/mutexchan/pkg/mutexchan"
)

func cliContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	set := flag.NewFlagSet("mutexchan", flag.ContinueOnError)
	set.String("config", "", "")
	set.String("name", "", "")
	set.Int("slot-ms", 0, "")
	set.String("log-level", "", "")
	set.String("debug-addr", "", "")
	set.Bool("calibrate", false, "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func TestLoadConfigFlags(t *testing.T) {
	config.DefaultPath = filepath.Join(t.TempDir(), "absent.toml")

	cfg, err := loadConfig(cliContext(t, "--name", "covert", "--slot-ms", "20", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "covert", cfg.Channel.Name)
	assert.Equal(t, 20, cfg.Channel.SlotMS)
	assert.False(t, cfg.Channel.Verbose)

	cfg, err = loadConfig(cliContext(t, "hello", "v"))
	require.NoError(t, err)
	assert.True(t, cfg.Channel.Verbose)
	assert.Equal(t, mutexchan.DefaultChannelName, cfg.Channel.Name)
}

func TestDebugMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	mutexchan.NewMetrics(reg)
	mux := debugMux(reg, func() mutexchan.State { return mutexchan.StateAborted }, t.TempDir())

	for path, code := range map[string]int{
		"/metrics":      http.StatusOK,
		"/live":         http.StatusOK,
		"/ready":        http.StatusServiceUnavailable,
		"/debug/pprof/": http.StatusOK,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, rec.Code, path)
	}
}
