package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	ping "github.com/go-ping/ping"
)

const pingAttempts = 3

// pingLatency measures the mean ICMP round trip to host in milliseconds.
// Unprivileged UDP mode everywhere except Windows, which only offers raw
// sockets.
func pingLatency(ctx context.Context, host string, attempts int) (float64, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return 0, err
	}
	pinger.SetPrivileged(runtime.GOOS == "windows")

	if attempts <= 0 {
		attempts = 1
	}
	pinger.Count = attempts
	pinger.Timeout = time.Duration(attempts) * 2 * time.Second

	statsCh := make(chan *ping.Statistics, 1)
	pinger.OnFinish = func(stats *ping.Statistics) {
		statsCh <- stats
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- pinger.Run()
	}()

	// Stats arrive through OnFinish after Run returns; allow a little slack
	// beyond the pinger's own timeout before giving up on them.
	deadline := time.NewTimer(pinger.Timeout + 2*time.Second)
	defer deadline.Stop()

	var stats *ping.Statistics
	for stats == nil {
		select {
		case <-ctx.Done():
			pinger.Stop()
			return 0, ctx.Err()
		case err := <-errCh:
			if err != nil {
				return 0, err
			}
		case stats = <-statsCh:
		case <-deadline.C:
			pinger.Stop()
			return 0, fmt.Errorf("ping statistics never arrived for %s", host)
		}
	}

	if stats.PacketsRecv == 0 {
		return 0, errors.New("no ping response")
	}
	return float64(stats.AvgRtt) / float64(time.Millisecond), nil
}
