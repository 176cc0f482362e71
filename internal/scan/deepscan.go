package scan

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"netscout/internal/errors"
	"netscout/internal/logging"
)

// DeepScanner runs focused per-host scans. It enforces single-flight per
// host: a second scan for a host already in flight is rejected with a
// Busy-coded error, while scans of different hosts run concurrently.
type DeepScanner struct {
	prober   DeepProber
	registry *Registry
	emit     *emitter
	log      *zap.SugaredLogger

	mu       sync.Mutex
	inflight map[string]*DeepScan
}

// NewDeepScanner builds a deep scanner feeding findings into the registry.
func NewDeepScanner(prober DeepProber, registry *Registry, emit *emitter) *DeepScanner {
	if emit == nil {
		emit = &emitter{}
	}
	return &DeepScanner{
		prober:   prober,
		registry: registry,
		emit:     emit,
		log:      logging.Component("deepscan"),
		inflight: make(map[string]*DeepScan),
	}
}

// Start launches a deep scan of one host and returns its handle. The scan
// runs until the prober finishes, the handle is cancelled, or ctx expires.
func (d *DeepScanner) Start(ctx context.Context, host string, mode DeepScanMode) (*DeepScan, error) {
	if net.ParseIP(host) == nil {
		return nil, errors.Newf(errors.CodeMalformedResult, "invalid host address %q", host).WithTarget(host)
	}
	if err := mode.Validate(); err != nil {
		return nil, errors.Wrap(errors.CodeMalformedResult, "invalid deep scan mode", err).WithTarget(host)
	}

	d.mu.Lock()
	if _, ok := d.inflight[host]; ok {
		d.mu.Unlock()
		return nil, errors.Newf(errors.CodeBusy, "deep scan already running for %s", host).WithTarget(host)
	}
	runCtx, cancel := context.WithCancel(ctx)
	scan := &DeepScan{
		id:      uuid.New(),
		host:    host,
		mode:    mode,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	d.inflight[host] = scan
	d.mu.Unlock()

	d.log.Infow("deep scan started", "id", scan.id, "host", host, "kind", mode.Kind)
	go d.run(runCtx, scan)
	return scan, nil
}

// Active returns the hosts with a deep scan currently in flight.
func (d *DeepScanner) Active() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	hosts := make([]string, 0, len(d.inflight))
	for host := range d.inflight {
		hosts = append(hosts, host)
	}
	return hosts
}

func (d *DeepScanner) run(ctx context.Context, scan *DeepScan) {
	findings, err := d.prober.DeepScan(ctx, scan.host, scan.mode, scan.setProgress)
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	if delta, ok := findingsDelta(scan.host, findings); ok {
		if _, mergeErr := d.registry.Merge(delta); mergeErr != nil {
			d.log.Warnw("deep scan merge rejected", "host", scan.host, "error", mergeErr)
			if err == nil {
				err = mergeErr
			}
		}
	}

	result := DeepScanResult{
		Host:     scan.host,
		Mode:     scan.mode,
		Findings: findings,
		Error:    errString(err),
		Duration: time.Since(scan.started).Seconds(),
	}

	// Release the slot before the terminal event so a caller reacting to it
	// can start the next scan immediately.
	d.mu.Lock()
	delete(d.inflight, scan.host)
	d.mu.Unlock()

	scan.finish(result)
	if err != nil {
		d.log.Warnw("deep scan finished with error", "id", scan.id, "host", scan.host, "error", err)
	} else {
		d.log.Infow("deep scan finished", "id", scan.id, "host", scan.host, "ports", len(findings.Ports))
	}
	d.emit.deepScanDone(result)
}

// findingsDelta folds deep findings into a registry delta. It reports false
// when the scan produced nothing worth merging.
func findingsDelta(host string, findings DeepFindings) (HostDelta, bool) {
	delta := HostDelta{
		Address:   host,
		Hostname:  findings.Hostname,
		OSGuess:   findings.OSGuess,
		LatencyMs: findings.LatencyMs,
		Metadata:  findings.Metadata,
		Model:     mineModelHint(findings.Metadata["airplay"]),
		Source:    "deepscan",
	}
	for _, p := range findings.Ports {
		delta.Ports = append(delta.Ports, p.Port)
		if p.Label != "" {
			if delta.Services == nil {
				delta.Services = make(map[int]string)
			}
			delta.Services[p.Port] = p.Label
		}
	}
	empty := delta.Hostname == "" && delta.OSGuess == "" && delta.LatencyMs == 0 &&
		len(delta.Ports) == 0 && len(delta.Metadata) == 0
	return delta, !empty
}

// DeepScan is the handle for one running or finished deep scan.
type DeepScan struct {
	id      uuid.UUID
	host    string
	mode    DeepScanMode
	started time.Time
	cancel  context.CancelFunc

	mu       sync.Mutex
	fraction float64
	result   DeepScanResult

	once sync.Once
	done chan struct{}
}

// ID returns the scan identifier.
func (s *DeepScan) ID() string {
	return s.id.String()
}

// Host returns the scanned address.
func (s *DeepScan) Host() string {
	return s.host
}

// Cancel stops the scan. Findings gathered so far are still merged and the
// terminal event still fires.
func (s *DeepScan) Cancel() {
	s.cancel()
}

// Done is closed once the terminal event has fired.
func (s *DeepScan) Done() <-chan struct{} {
	return s.done
}

// Progress returns the completed fraction, 0..1.
func (s *DeepScan) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fraction
}

// Result returns the terminal result once the scan is done.
func (s *DeepScan) Result() (DeepScanResult, bool) {
	select {
	case <-s.done:
	default:
		return DeepScanResult{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, true
}

func (s *DeepScan) setProgress(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fraction > s.fraction && fraction <= 1 {
		s.fraction = fraction
	}
}

func (s *DeepScan) finish(result DeepScanResult) {
	s.once.Do(func() {
		s.mu.Lock()
		s.result = result
		s.fraction = 1
		s.mu.Unlock()
		close(s.done)
		s.cancel()
	})
}
