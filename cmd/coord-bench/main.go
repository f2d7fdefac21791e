package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/counter"
	"github.com/mirkobrombin/go-coord/v1/firewall"
	"github.com/mirkobrombin/go-coord/v1/lock"
	"github.com/mirkobrombin/go-coord/v1/metrics"
	"github.com/mirkobrombin/go-coord/v1/presets"
	"github.com/mirkobrombin/go-coord/v1/ratelimit"
	"github.com/mirkobrombin/go-coord/v1/validator"
)

var (
	addr        = flag.String("addr", "", "Redis address (empty starts an embedded miniredis)")
	primitive   = flag.String("p", "ratelimit", "Primitive to hammer: counter, lock, ratelimit, firewall")
	concurrency = flag.Int("c", 50, "Number of concurrent clients")
	requests    = flag.Int("n", 10000, "Total number of requests")
	limit       = flag.Int64("limit", 10, "Limit for ratelimit and firewall")
	atomicHits  = flag.Bool("atomic", false, "Use atomic firewall hits")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address and keep running")
	audit       = flag.Bool("audit", false, "Run the limiter validator during the ratelimit benchmark")
)

func main() {
	flag.Parse()
	if err := validateFlags(*concurrency, *requests); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	ctx := context.Background()

	reg := metrics.NewRegistry()
	metrics.RegisterCoreMetrics(reg)

	var c *client.Client
	if *addr == "" {
		log.Println("Initializing embedded miniredis...")
		mc, closeFn, err := presets.NewInMemoryStandalone(ctx)
		if err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		defer closeFn()
		c = mc
	} else {
		rc, err := presets.NewRedis(ctx, presets.RedisOptions{Addr: *addr})
		if err != nil {
			log.Fatalf("Connect failed: %v", err)
		}
		defer rc.Close()
		c = rc
	}

	op, l, err := operation(c)
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}

	var v *validator.Validator
	if *audit && l != nil {
		v = validator.New(c, validator.ModeAlert, 10*time.Millisecond, l)
		actx, cancel := context.WithCancel(ctx)
		defer cancel()
		go v.Run(actx)
	}

	log.Printf("Starting benchmark: %s, %d requests, %d concurrency", *primitive, *requests, *concurrency)

	var ops, accepted, errorsCount atomic.Int64
	perWorker := *requests / *concurrency
	start := time.Now()

	var g errgroup.Group
	for i := 0; i < *concurrency; i++ {
		g.Go(func() error {
			for j := 0; j < perWorker; j++ {
				ok, err := op(ctx)
				switch {
				case err != nil:
					errorsCount.Add(1)
				case ok:
					accepted.Add(1)
				}
				ops.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	n := ops.Load()
	log.Printf("Finished in %v", elapsed)
	log.Printf("Throughput: %.2f req/s", float64(n)/elapsed.Seconds())
	log.Printf("Avg Latency: %.2f µs", elapsed.Seconds()/float64(n)*1e6)
	log.Printf("Accepted: %d of %d", accepted.Load(), n)
	if e := errorsCount.Load(); e > 0 {
		log.Printf("Errors: %d", e)
	}
	if v != nil {
		log.Printf("Out-of-range limiter counts seen: %d", v.Metrics())
	}

	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Printf("Serving metrics on %s/metrics", *metricsAddr)
		log.Fatal(http.ListenAndServe(*metricsAddr, nil))
	}
}

// validateFlags rejects runs in which some worker would get no requests.
func validateFlags(concurrency, requests int) error {
	if concurrency <= 0 {
		return fmt.Errorf("-c must be positive, got %d", concurrency)
	}
	if requests < concurrency {
		return fmt.Errorf("-n (%d) must be at least -c (%d)", requests, concurrency)
	}
	return nil
}

// operation returns one benchmark step, and the limiter when the step uses
// one. The bool reports an accepted request (counter increments are always
// accepted).
func operation(c *client.Client) (func(context.Context) (bool, error), *ratelimit.Limiter, error) {
	switch *primitive {
	case "counter":
		ctr, err := counter.New(c, "bench")
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context) (bool, error) {
			_, err := ctr.Increase(ctx, 1)
			return err == nil, err
		}, nil, nil
	case "lock":
		return func(ctx context.Context) (bool, error) {
			l, err := lock.New(c, "bench")
			if err != nil {
				return false, err
			}
			ok, err := l.TryLock(ctx, time.Second)
			if ok {
				_, err = l.Release(ctx)
			}
			return ok, err
		}, nil, nil
	case "firewall":
		var opts []firewall.Option
		if *atomicHits {
			opts = append(opts, firewall.WithAtomicHits())
		}
		fw, err := firewall.New(c, "bench", *limit, opts...)
		if err != nil {
			return nil, nil, err
		}
		return fw.Hit, nil, nil
	default:
		l, err := ratelimit.New(c, "bench", *limit)
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context) (bool, error) {
			ok, err := l.Acquire(ctx)
			if ok {
				_, err = l.Release(ctx)
			}
			return ok, err
		}, l, nil
	}
}
