// Command qsbr-bench drives a configurable mix of reader and writer
// goroutines against a single libsref.Domain and reports throughput. It
// exists to exercise the library under realistic contention, not as a
// rigorous benchmark harness.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lmlg/libsref"
	"github.com/lmlg/libsref/internal/pcounter"
)

type sample struct {
	libsref.Object
	n int
}

func main() {
	var (
		readers  = pflag.IntP("readers", "r", 8, "number of reader goroutines")
		writers  = pflag.IntP("writers", "w", 2, "number of writer goroutines")
		duration = pflag.DurationP("duration", "d", 2*time.Second, "how long to run")
		capacity = pflag.IntP("capacity", "c", 128, "per-reader delta cache capacity (power of two)")
	)
	pflag.Parse()

	if err := run(*readers, *writers, *duration, *capacity); err != nil {
		fmt.Fprintln(os.Stderr, "qsbr-bench:", err)
		os.Exit(1)
	}
}

func run(readers, writers int, duration time.Duration, capacity int) error {
	d, err := libsref.NewDomain(libsref.WithCapacity(capacity))
	if err != nil {
		return err
	}

	live := pcounter.New()
	newSample := func(n int) *sample {
		s := &sample{n: n}
		live.Add(1)
		s.Init(func() { live.Add(-1) })
		return s
	}

	var slot atomic.Pointer[sample]
	initial := newSample(0)
	slot.Store(initial)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	acquired := pcounter.New()
	installed := pcounter.New()

	eg, ctx := errgroup.WithContext(ctx)

	for i := 0; i < readers; i++ {
		eg.Go(func() error {
			r := d.NewReader()
			defer r.Close()
			for ctx.Err() == nil {
				r.Enter()
				p := libsref.Acquire(r, slot.Load())
				libsref.Release(r, p)
				r.Exit()
				acquired.Add(1)
			}
			return nil
		})
	}

	for i := 0; i < writers; i++ {
		seed := int64(i + 1)
		eg.Go(func() error {
			r := d.NewReader()
			defer r.Close()
			rng := rand.New(rand.NewSource(seed))
			n := 0
			for ctx.Err() == nil {
				n++
				next := newSample(n)

				r.Enter()
				old := slot.Swap(next)
				libsref.Release(r, old)
				r.Exit()

				installed.Add(1)

				if err := r.Flush(); err != nil && err != libsref.ErrFlushInCriticalSection {
					return err
				}
				if rng.Intn(256) == 0 {
					time.Sleep(time.Microsecond)
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	r := d.NewReader()
	r.Enter()
	last := slot.Load()
	libsref.Release(r, last)
	r.Exit()
	if err := r.Flush(); err != nil {
		return err
	}
	r.Close()

	fmt.Printf("readers=%d writers=%d duration=%s capacity=%d\n", readers, writers, duration, capacity)
	fmt.Printf("reads=%d installs=%d live-objects-remaining=%d\n", acquired.Load(), installed.Load(), live.Load())
	return nil
}
