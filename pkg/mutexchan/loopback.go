package mutexchan

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/srediag/mutexchan/api"
)

// Loopback sends payload to itself over a real primitive, running a Sender
// and a Receiver session concurrently in this process.
func Loopback(ctx context.Context, opener api.Opener, cfg *Config, payload []byte, opts ...Option) ([]byte, error) {
	tx, err := NewSession(RoleSender, opener, cfg, opts...)
	if err != nil {
		return nil, err
	}
	rx, err := NewSession(RoleReceiver, opener, cfg, opts...)
	if err != nil {
		return nil, err
	}

	var got []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tx.Send(gctx, payload)
	})
	g.Go(func() error {
		data, err := rx.Receive(gctx)
		got = data
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return got, nil
}
