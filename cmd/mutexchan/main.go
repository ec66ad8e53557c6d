// Command mutexchan passes a message between two processes using nothing but
// the lock state of a named mutex.
//
//	mutexchan                 wait for a message and print it
//	mutexchan "message"       send a message
//	mutexchan "message" -v    send a message and dump every byte as bits
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/srediag/mutexchan/adapter"
	"github.com/srediag/mutexchan/api"
	"github.com/srediag/mutexchan/internal/config"
	"github.com/srediag/mutexchan/internal/logging"
	"github.com/srediag/mutexchan/pkg/calibrate"
	"github.com/srediag/mutexchan/pkg/mutexchan"
	"github.com/srediag/mutexchan/pkg/primitive"
)

func main() {
	app := cli.NewApp()
	app.Name = "mutexchan"
	app.Usage = "send a message to another process through a named mutex"
	app.UsageText = "mutexchan [options] [message [verbose]]"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "TOML configuration file",
			EnvVar: "MUTEXCHAN_CONFIG",
		},
		cli.StringFlag{
			Name:  "name, n",
			Usage: "channel name shared by both ends",
		},
		cli.IntFlag{
			Name:  "slot-ms",
			Usage: "bit slot duration in milliseconds, must match on both ends",
		},
		cli.StringFlag{
			Name:  "log-level, l",
			Usage: "log level (debug, info, warn, error)",
		},
		cli.StringFlag{
			Name:  "debug-addr",
			Usage: "serve /metrics, /live, /ready and /debug/pprof on this address",
		},
		cli.BoolFlag{
			Name:  "calibrate",
			Usage: "run loopback transfers at several slot durations and report which work",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mutexchan:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("name") {
		cfg.Channel.Name = c.String("name")
	}
	if c.IsSet("slot-ms") {
		cfg.Channel.SlotMS = c.Int("slot-ms")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("debug-addr") {
		cfg.Debug.Addr = c.String("debug-addr")
	}
	if c.NArg() > 1 {
		cfg.Channel.Verbose = true
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	chCfg, err := cfg.ChannelConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ot, err := adapter.NewOTel(otel.GetMeterProvider().Meter("mutexchan"), otel.Tracer("mutexchan"))
	if err != nil {
		return err
	}
	opts := []mutexchan.Option{
		mutexchan.WithLogger(log),
		mutexchan.WithMetrics(mutexchan.NewMetrics(reg)),
		mutexchan.WithOTel(ot),
	}
	opener := primitive.NewOpener(primitive.Options{Dir: cfg.Channel.Dir, Logger: log})

	var current atomic.Pointer[mutexchan.Session]
	state := func() mutexchan.State {
		if s := current.Load(); s != nil {
			return s.State()
		}
		return mutexchan.StateIdle
	}
	if cfg.Debug.Addr != "" {
		srv := startDebugServer(cfg.Debug.Addr, reg, state, cfg.Channel.Dir, log)
		defer shutdownDebugServer(srv, log)
	}

	if c.Bool("calibrate") {
		return runCalibration(ctx, opener, chCfg, log)
	}

	if c.NArg() == 0 {
		sess, err := mutexchan.NewSession(mutexchan.RoleReceiver, opener, chCfg, opts...)
		if err != nil {
			return err
		}
		current.Store(sess)
		log.Info("waiting for a sender", zap.String("channel", chCfg.Name))
		data, err := sess.Receive(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Received: %s\n", data)
		return nil
	}

	sess, err := mutexchan.NewSession(mutexchan.RoleSender, opener, chCfg, opts...)
	if err != nil {
		return err
	}
	current.Store(sess)
	log.Info("waiting for a receiver", zap.String("channel", chCfg.Name))
	return sess.Send(ctx, []byte(c.Args().First()))
}

func runCalibration(ctx context.Context, opener api.Opener, cfg *mutexchan.Config, log *zap.Logger) error {
	results, err := calibrate.Run(ctx, opener, cfg, calibrate.Options{Logger: log})
	if err != nil {
		return err
	}
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "corrupted"
			if r.Err != nil {
				status = r.Err.Error()
			}
		}
		fmt.Printf("%6v  %-8v  %s\n", r.Slot, r.Elapsed.Round(time.Millisecond), status)
	}
	if slot, ok := calibrate.Fastest(results); ok {
		fmt.Printf("fastest working slot: %v\n", slot)
		return nil
	}
	return fmt.Errorf("no slot duration transferred correctly")
}
