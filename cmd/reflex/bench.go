package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"runtime"
	"runtime/metrics"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/reflex/internal/config"
	"github.com/vango-dev/reflex/pkg/client"
	"github.com/vango-dev/reflex/pkg/protocol"
	"golang.org/x/time/rate"
)

// benchOptions drive one load run.
type benchOptions struct {
	URL       string
	CablePath string
	Clients   int
	Duration  time.Duration
	Rate      float64
	Target    string
	Element   string
	Selectors []string
}

// benchReport summarizes a load run.
type benchReport struct {
	Clients   int
	Duration  time.Duration
	Calls     uint64
	Errors    uint64
	Rejected  uint64
	Latencies []time.Duration

	alloc   uint64
	numGC   uint32
	gcPause time.Duration
	gcCPU   float64
}

func benchCmd() *cobra.Command {
	opts := benchOptions{
		CablePath: config.DefaultCablePath,
		Clients:   50,
		Duration:  10 * time.Second,
		Rate:      2,
		Target:    "Counter#increment",
		Element:   "#increment",
		Selectors: []string{"#count"},
	}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure invocation round trips under concurrent load",
		Long: `Drive concurrent cable clients that invoke a reflex and wait for the
resulting message, then report latency percentiles and GC work.

Without --url the counter demo is started in-process on a loopback port
with in-memory sessions.

Each round trip covers: invocation encode, websocket write, dispatch,
page render, selector reconciliation, broadcast and client patching.

Examples:
  reflex bench
  reflex bench --clients=200 --duration=30s --rate=5
  reflex bench --url=http://localhost:8080 --selector=body`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Clients <= 0 {
				return errors.New("--clients must be > 0")
			}
			if opts.Duration <= 0 {
				return errors.New("--duration must be > 0")
			}
			if opts.Rate <= 0 {
				return errors.New("--rate must be > 0")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if opts.URL == "" {
				url, stop, err := benchServer(ctx, opts.Rate)
				if err != nil {
					return err
				}
				defer stop()
				opts.URL = url
			}

			report, err := runBench(ctx, opts)
			if err != nil {
				return err
			}
			report.print(cmd.OutOrStdout(), opts)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.URL, "url", "", "Base URL of a running server (default: in-process demo)")
	f.StringVar(&opts.CablePath, "cable", opts.CablePath, "Cable path on the server")
	f.IntVar(&opts.Clients, "clients", opts.Clients, "Number of concurrent clients")
	f.DurationVar(&opts.Duration, "duration", opts.Duration, "How long to run")
	f.Float64Var(&opts.Rate, "rate", opts.Rate, "Target invocations per second per client (response gated)")
	f.StringVar(&opts.Target, "target", opts.Target, "Reflex target to invoke")
	f.StringVar(&opts.Element, "element", opts.Element, "Selector of the element that invokes")
	f.StringSliceVar(&opts.Selectors, "selector", opts.Selectors, "Selectors to update (empty for the full page)")

	return cmd
}

// benchServer starts the demo on a loopback port. The per-connection rate
// limit is raised above the load rate so no call is rejected.
func benchServer(ctx context.Context, perClient float64) (string, func(), error) {
	cfg := config.New()
	cfg.Logging.Level = "error"
	cfg.Server.RateLimit = math.Max(cfg.Server.RateLimit, 2*perClient)
	cfg.Server.RateBurst = max(cfg.Server.RateBurst, int(2*perClient)+1)

	s, err := build(ctx, cfg, newLogger(cfg.Logging, io.Discard), demoApp("bench"), demoRegistry())
	if err != nil {
		return "", nil, err
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		s.Close(ctx)
		return "", nil, fmt.Errorf("listen: %w", err)
	}
	httpServer := &http.Server{Handler: s.server}
	go func() {
		_ = httpServer.Serve(ln)
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		_ = httpServer.Shutdown(shutdownCtx)
		s.Close(shutdownCtx)
	}
	return "http://" + ln.Addr().String(), stop, nil
}

// runBench runs opts.Clients clients against opts.URL for opts.Duration.
func runBench(ctx context.Context, opts benchOptions) (*benchReport, error) {
	pageURL := strings.TrimRight(opts.URL, "/") + "/"
	cableURL := "ws" + strings.TrimPrefix(strings.TrimRight(opts.URL, "/"), "http") + opts.CablePath

	ctx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	samplesCh := make(chan time.Duration, 1024)
	var samples []time.Duration
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samples = append(samples, rtt)
		}
	}()

	var (
		calls    atomic.Uint64
		failures atomic.Uint64
		rejected atomic.Uint64
	)

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()
	started := time.Now()

	var wg sync.WaitGroup
	wg.Add(opts.Clients)
	for i := 0; i < opts.Clients; i++ {
		go func() {
			defer wg.Done()
			err := runBenchClient(ctx, pageURL, cableURL, opts, samplesCh, &calls, &rejected)
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	close(samplesCh)
	<-collectorDone

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return &benchReport{
		Clients:   opts.Clients,
		Duration:  time.Since(started),
		Calls:     calls.Load(),
		Errors:    failures.Load(),
		Rejected:  rejected.Load(),
		Latencies: samples,
		alloc:     after.TotalAlloc - before.TotalAlloc,
		numGC:     after.NumGC - before.NumGC,
		gcPause:   time.Duration(after.PauseTotalNs - before.PauseTotalNs),
		gcCPU:     cpuFraction(afterMetrics, beforeMetrics),
	}, nil
}

func runBenchClient(
	ctx context.Context,
	pageURL, cableURL string,
	opts benchOptions,
	samples chan<- time.Duration,
	calls, rejected *atomic.Uint64,
) error {
	src, cookies, err := fetchPage(ctx, pageURL)
	if err != nil {
		return err
	}
	header := http.Header{}
	for _, c := range cookies {
		header.Add("Cookie", c.Name+"="+c.Value)
	}

	c, err := client.Dial(ctx, cableURL, src, pageURL,
		client.WithHeader(header),
		client.WithLogger(newLogger(config.LoggingConfig{Level: "error"}, io.Discard)),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	limiter := rate.NewLimiter(rate.Limit(opts.Rate), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		el, err := c.Query(opts.Element)
		if err != nil {
			return err
		}

		start := time.Now()
		call, err := c.Invoke(ctx, opts.Target, el, client.WithSelectors(opts.Selectors...))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		res, err := call.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if res.Frame != nil && res.Frame.Code == protocol.CodeRateLimited {
			rejected.Add(1)
			continue
		}
		samples <- time.Since(start)
		calls.Add(1)
	}
}

func fetchPage(ctx context.Context, url string) (string, []*http.Cookie, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}
	return string(body), resp.Cookies(), nil
}

func (r *benchReport) print(w io.Writer, opts benchOptions) {
	seconds := math.Max(0.001, r.Duration.Seconds())

	fmt.Fprintln(w, "=== Reflex Load Benchmark ===")
	fmt.Fprintf(w, "Clients: %d\n", r.Clients)
	fmt.Fprintf(w, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Target: %s (selectors %v)\n", opts.Target, opts.Selectors)
	fmt.Fprintf(w, "Target per-client rate: %.2f calls/s\n", opts.Rate)
	fmt.Fprintf(w, "Total calls: %d\n", r.Calls)
	fmt.Fprintf(w, "Rate limited: %d\n", r.Rejected)
	fmt.Fprintf(w, "Failed clients: %d\n", r.Errors)
	fmt.Fprintf(w, "Throughput: %.1f calls/s\n", float64(r.Calls)/seconds)
	fmt.Fprintln(w)

	if len(r.Latencies) == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
	} else {
		fmt.Fprintln(w, "RTT (invoke → dispatch → render → reconcile → client patch):")
		fmt.Fprintf(w, "  min: %s\n", r.Latencies[0])
		fmt.Fprintf(w, "  p50: %s\n", percentile(r.Latencies, 0.50))
		fmt.Fprintf(w, "  p95: %s\n", percentile(r.Latencies, 0.95))
		fmt.Fprintf(w, "  p99: %s\n", percentile(r.Latencies, 0.99))
		fmt.Fprintf(w, "  max: %s\n", r.Latencies[len(r.Latencies)-1])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Go runtime / GC (process-wide):")
	fmt.Fprintf(w, "  alloc:     %.2f MB\n", float64(r.alloc)/(1024*1024))
	fmt.Fprintf(w, "  num_gc:    %d\n", r.numGC)
	fmt.Fprintf(w, "  gc_pause:  %s (total)\n", r.gcPause)
	fmt.Fprintf(w, "  gc_cpu:    %.2f%%\n", 100*r.gcCPU)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds float64
	cpuGCSeconds    float64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		if s.Value.Kind() != metrics.KindFloat64 {
			continue
		}
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}
