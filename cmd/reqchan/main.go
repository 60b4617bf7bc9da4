// Program reqchan is a command-line utility for exercising request-response
// channels.
package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/reqchan"
	"github.com/creachadair/reqchan/serve"
	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog"
)

var benchFlags struct {
	Capacity int           `flag:"capacity,default=16,Channel capacity (0 for unbounded)"`
	Senders  int           `flag:"senders,default=4,Number of concurrent senders"`
	Requests int           `flag:"requests,default=100000,Number of requests per sender"`
	Workers  int           `flag:"workers,default=1,Maximum number of concurrent handlers"`
	Timeout  time.Duration `flag:"timeout,Response deadline (0 for none)"`
	Delay    time.Duration `flag:"delay,Simulated handler latency"`
	Verbose  bool          `flag:"v,Enable verbose logging"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Utilities for exercising request-response channels.",
		Commands: []*command.C{
			{
				Name:  "bench",
				Usage: "[flags]",
				Help: `Measure round-trip throughput of a request-response channel.

Start a service loop on a new channel, and have each of the senders issue the
specified number of requests, waiting for each response. When all senders have
finished, print the elapsed time, the request rate, and the channel metrics.`,

				SetFlags: func(_ *command.Env, fs *flag.FlagSet) { flax.MustBind(fs, &benchFlags) },
				Run:      runBench,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

// requester is the sending side of a channel, bounded or not.
type requester interface {
	SendReceive(context.Context, int) (int, error)
	Close()
}

func runBench(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments after command")
	}
	if benchFlags.Senders <= 0 || benchFlags.Requests <= 0 {
		return env.Usagef("senders and requests must be positive")
	} else if benchFlags.Capacity < 0 || benchFlags.Timeout < 0 {
		return env.Usagef("capacity and timeout must not be negative")
	}

	level := zerolog.InfoLevel
	if benchFlags.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	txs, rx := newChannel()
	log.Debug().
		Int("capacity", rx.Cap()).
		Int("senders", len(txs)).
		Int("workers", benchFlags.Workers).
		Dur("timeout", benchFlags.Timeout).
		Msg("starting benchmark")

	loop := taskgroup.Go(func() error {
		defer rx.Close()
		return serve.Loop(ctx, rx, serve.Func(handle), &serve.Options{
			Concurrency: benchFlags.Workers,
			Logger:      &log,
		})
	})

	var nerr atomic.Int64
	g := taskgroup.New(func(err error) {
		nerr.Add(1)
		log.Error().Err(err).Msg("sender failed")
	})

	start := time.Now()
	for i, tx := range txs {
		g.Go(func() error {
			defer tx.Close()
			for j := range benchFlags.Requests {
				v := i*benchFlags.Requests + j
				rsp, err := tx.SendReceive(ctx, v)
				if err != nil {
					if reqchan.AsRequestError[int](err).Kind == reqchan.Canceled {
						return nil
					}
					return err
				} else if rsp != compute(v) {
					return fmt.Errorf("request %d: got response %d", v, rsp)
				}
			}
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)
	if err := loop.Wait(); err != nil {
		log.Warn().Err(err).Msg("service loop stopped early")
	}

	total := len(txs) * benchFlags.Requests
	fmt.Printf("requests:  %d\n", total)
	fmt.Printf("elapsed:   %v\n", elapsed.Round(time.Microsecond))
	fmt.Printf("rate:      %.0f req/s\n", float64(total)/elapsed.Seconds())
	reqchan.Metrics().Do(func(kv expvar.KeyValue) {
		fmt.Printf("%-20s %s\n", kv.Key+":", kv.Value)
	})
	if n := nerr.Load(); n != 0 {
		return fmt.Errorf("%d of %d senders failed", n, len(txs))
	}
	return nil
}

// newChannel constructs a channel according to the flags, and returns one
// sender handle for each requested sender.
func newChannel() ([]requester, *reqchan.Receiver[int, int]) {
	n, c, d := benchFlags.Senders, benchFlags.Capacity, benchFlags.Timeout
	txs := make([]requester, n)
	if c == 0 {
		var tx *reqchan.UnboundedSender[int, int]
		var rx *reqchan.Receiver[int, int]
		if d > 0 {
			tx, rx = reqchan.NewUnboundedWithTimeout[int, int](d)
		} else {
			tx, rx = reqchan.NewUnbounded[int, int]()
		}
		txs[0] = tx
		for i := 1; i < n; i++ {
			txs[i] = tx.Clone()
		}
		return txs, rx
	}

	var tx *reqchan.Sender[int, int]
	var rx *reqchan.Receiver[int, int]
	if d > 0 {
		tx, rx = reqchan.NewWithTimeout[int, int](c, d)
	} else {
		tx, rx = reqchan.New[int, int](c)
	}
	txs[0] = tx
	for i := 1; i < n; i++ {
		txs[i] = tx.Clone()
	}
	return txs, rx
}

func handle(_ context.Context, v int) int {
	if d := benchFlags.Delay; d > 0 {
		time.Sleep(d)
	}
	return compute(v)
}

func compute(v int) int { return v*v + 1 }
