package scan

import (
	"context"
	"errors"
	"runtime"
	"time"

	ping "github.com/go-ping/ping"
)

// reachability is the outcome of the liveness probe. Timeouts and refusals
// are reported as unreachable, never as errors.
type reachability struct {
	Reachable bool
	Latency   time.Duration
}

// checkReachability sends at most two echo requests (one retry) with a short
// overall budget.
func checkReachability(ctx context.Context, host string) reachability {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return reachability{}
	}

	// Unprivileged UDP ping where the platform allows it.
	pinger.SetPrivileged(runtime.GOOS == "windows")
	pinger.Count = 2
	pinger.Timeout = 2 * time.Second

	statsCh := make(chan *ping.Statistics, 1)
	pinger.OnFinish = func(stats *ping.Statistics) {
		statsCh <- stats
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- pinger.Run()
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		return reachability{}
	case err := <-errCh:
		if err != nil {
			return reachability{}
		}
	}

	var stats *ping.Statistics
	select {
	case stats = <-statsCh:
	case <-ctx.Done():
		return reachability{}
	case <-time.After(pinger.Timeout + time.Second):
		return reachability{}
	}

	if stats == nil || stats.PacketsRecv == 0 {
		return reachability{}
	}
	return reachability{Reachable: true, Latency: stats.AvgRtt}
}

// ctxError reports whether err (or the context itself) is a cancellation.
func ctxError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
