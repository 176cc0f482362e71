package scan

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// sweepWorker drives the bulk discovery phase. It converts sweeper findings
// into registry deltas and guarantees exactly one terminal callback per run,
// whatever the sweeper does.
type sweepWorker struct {
	sweeper  Sweeper
	registry *Registry
	log      *zap.SugaredLogger

	onProgress func(float64)
	onDone     func(error)
	once       sync.Once
}

func newSweepWorker(sweeper Sweeper, registry *Registry, log *zap.SugaredLogger, onProgress func(float64), onDone func(error)) *sweepWorker {
	return &sweepWorker{
		sweeper:    sweeper,
		registry:   registry,
		log:        log,
		onProgress: onProgress,
		onDone:     onDone,
	}
}

func (w *sweepWorker) run(ctx context.Context, target string) {
	err := w.sweeper.Sweep(ctx, target, w.handleFinding, w.handleProgress)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	w.finish(err)
}

func (w *sweepWorker) handleFinding(finding SweepFinding) {
	delta := HostDelta{
		Address:    finding.Address,
		MAC:        finding.MAC,
		Hostname:   finding.Hostname,
		OSGuess:    finding.OSGuess,
		VendorHint: finding.MACVendor,
		LatencyMs:  finding.LatencyMs,
		Source:     "sweep",
	}
	for _, port := range finding.Ports {
		delta.Ports = append(delta.Ports, port.Port)
		if port.Label != "" {
			if delta.Services == nil {
				delta.Services = make(map[int]string, len(finding.Ports))
			}
			delta.Services[port.Port] = port.Label
		}
	}

	if _, err := w.registry.Merge(delta); err != nil {
		w.log.Warnw("sweep finding rejected", "address", finding.Address, "error", err)
	}
}

func (w *sweepWorker) handleProgress(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	w.onProgress(fraction)
}

// finish emits the terminal event. Safe to call more than once; only the
// first call is delivered.
func (w *sweepWorker) finish(err error) {
	w.once.Do(func() {
		if err != nil {
			w.log.Warnw("sweep phase ended with error", "error", err)
		}
		w.onDone(err)
	})
}
