// Package probe runs the external discovery tooling: chunked nmap sweeps for
// the bulk phase, one-shot nmap runs for deep scans, and the follow-up
// enrichment probes (ICMP echo, anonymous SMB, AirPlay).
package probe

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"

	nmap "github.com/Ullaakut/nmap/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"netscout/internal/errors"
	"netscout/internal/logging"
	"netscout/internal/scan"
)

const (
	defaultChunks     = 8
	defaultTopPorts   = 100
	defaultTiming     = 4
	defaultEnrichRate = 4
	quickScanPorts    = 1000
	fullPortRange     = "1-65535"
)

// Config tunes the nmap runner. The zero value picks the defaults.
type Config struct {
	Chunks     int     // sweep chunk count
	TopPorts   int     // ports probed per sweep chunk
	Timing     int     // nmap timing template for sweeps (1..5)
	DeepTiming int     // nmap timing template for deep scans
	EnrichRate float64 // enrichment probes per second across all deep scans
}

func (c Config) withDefaults() Config {
	if c.Chunks <= 0 {
		c.Chunks = defaultChunks
	}
	if c.TopPorts <= 0 {
		c.TopPorts = defaultTopPorts
	}
	if c.Timing <= 0 || c.Timing > 5 {
		c.Timing = defaultTiming
	}
	if c.DeepTiming <= 0 || c.DeepTiming > 5 {
		c.DeepTiming = defaultTiming
	}
	if c.EnrichRate <= 0 {
		c.EnrichRate = defaultEnrichRate
	}
	return c
}

// Runner shells out to nmap for both scan phases and paces the per-host
// enrichment probes behind one shared limiter, so parallel deep scans spread
// their traffic instead of bursting.
type Runner struct {
	cfg     Config
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

var (
	_ scan.Sweeper    = (*Runner)(nil)
	_ scan.DeepProber = (*Runner)(nil)
)

// NewRunner builds a Runner from cfg.
func NewRunner(cfg Config) *Runner {
	cfg = cfg.withDefaults()
	return &Runner{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.EnrichRate), 1),
		log:     logging.Component("probe"),
	}
}

// Sweep implements scan.Sweeper. The target range is split into chunks and
// each chunk gets its own nmap connect scan, so findings and progress stream
// while the sweep is still covering the rest of the range. A failing chunk is
// logged and skipped; the first such error becomes the phase error.
func (r *Runner) Sweep(ctx context.Context, target string, emit func(scan.SweepFinding), progress func(float64)) error {
	addrs, err := ExpandTarget(target)
	if err != nil {
		return errors.Wrap(errors.CodeMalformedResult, "unusable sweep target", err)
	}

	chunks := splitChunks(addrs, r.cfg.Chunks)
	r.log.Infow("starting sweep", "target", target, "addresses", len(addrs), "chunks", len(chunks))

	var firstErr error
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.sweepChunk(ctx, chunk, emit); err != nil {
			if stderrors.Is(err, nmap.ErrNmapNotInstalled) {
				return errors.Wrap(errors.CodeToolUnavailable, "nmap binary was not found", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Warnw("sweep chunk failed", "chunk", i+1, "chunks", len(chunks), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		progress(float64(i+1) / float64(len(chunks)))
	}
	return firstErr
}

func (r *Runner) sweepChunk(ctx context.Context, chunk []string, emit func(scan.SweepFinding)) error {
	scanner, err := nmap.NewScanner(ctx,
		nmap.WithTargets(chunk...),
		nmap.WithConnectScan(),
		nmap.WithMostCommonPorts(r.cfg.TopPorts),
		nmap.WithTimingTemplate(nmap.Timing(r.cfg.Timing)),
	)
	if err != nil {
		return err
	}

	result, warnings, err := scanner.Run()
	if warnings != nil && len(*warnings) > 0 {
		r.log.Debugw("nmap sweep warnings", "warnings", *warnings)
	}
	if err != nil {
		return err
	}

	for i := range result.Hosts {
		if finding, ok := sweepFinding(&result.Hosts[i]); ok {
			emit(finding)
		}
	}
	return nil
}

// DeepScan implements scan.DeepProber. One nmap run sized by mode, then the
// enrichment probes. Progress moves in coarse steps: scan start, scan end,
// one step per enrichment.
func (r *Runner) DeepScan(ctx context.Context, host string, mode scan.DeepScanMode, progress func(float64)) (scan.DeepFindings, error) {
	var findings scan.DeepFindings

	options, err := deepScanOptions(host, mode, r.cfg.DeepTiming)
	if err != nil {
		return findings, errors.Wrap(errors.CodeMalformedResult, "unusable deep scan mode", err).WithTarget(host)
	}

	r.log.Infow("starting deep scan", "host", host, "mode", mode.Kind)
	progress(0.05)

	scanner, err := nmap.NewScanner(ctx, options...)
	if err != nil {
		if stderrors.Is(err, nmap.ErrNmapNotInstalled) {
			return findings, errors.Wrap(errors.CodeToolUnavailable, "nmap binary was not found", err).WithTarget(host)
		}
		return findings, err
	}

	result, warnings, err := scanner.Run()
	if warnings != nil && len(*warnings) > 0 {
		r.log.Debugw("nmap deep scan warnings", "host", host, "warnings", *warnings)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return findings, ctxErr
		}
		return findings, err
	}
	progress(0.6)

	for i := range result.Hosts {
		h := &result.Hosts[i]
		findings.Ports = append(findings.Ports, openPorts(h.Ports)...)
		if findings.Hostname == "" && len(h.Hostnames) > 0 {
			findings.Hostname = h.Hostnames[0].Name
		}
		if findings.OSGuess == "" {
			findings.OSGuess = bestOSMatch(h)
		}
		if ms := srttMillis(h.Times.SRTT); ms > 0 {
			findings.LatencyMs = ms
		}
	}

	r.enrich(ctx, host, &findings, progress)
	progress(1)
	return findings, nil
}

// enrich layers the focused probes over the port scan results. Probe
// failures are the norm on most hosts and only logged at debug.
func (r *Runner) enrich(ctx context.Context, host string, findings *scan.DeepFindings, progress func(float64)) {
	if r.wait(ctx) {
		if ms, err := pingLatency(ctx, host, pingAttempts); err == nil && ms > 0 {
			findings.LatencyMs = ms
		} else if err != nil {
			r.log.Debugw("ping probe failed", "host", host, "error", err)
		}
	}
	progress(0.75)

	if hasPort(findings.Ports, smbPort) && r.wait(ctx) {
		if id := lookupSMBIdentity(ctx, host); id != nil {
			if findings.Hostname == "" {
				findings.Hostname = id.ComputerName
			}
			if findings.OSGuess == "" && id.OSVersion != "" {
				findings.OSGuess = "Windows " + id.OSVersion
			}
			setMetadata(findings, "smb", id.fields())
		}
	}
	progress(0.9)

	if hasPort(findings.Ports, airPlayPort) && r.wait(ctx) {
		setMetadata(findings, "airplay", airPlayFields(ctx, host))
	}
}

// wait blocks on the enrichment limiter. False means the scan was cancelled
// while waiting.
func (r *Runner) wait(ctx context.Context) bool {
	return r.limiter.Wait(ctx) == nil
}

// deepScanOptions maps a scan mode onto nmap options. Quick probes the most
// common thousand ports, advanced walks the full range with service and OS
// detection, custom takes the caller's ports verbatim.
func deepScanOptions(host string, mode scan.DeepScanMode, timing int) ([]nmap.Option, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	options := []nmap.Option{
		nmap.WithTargets(host),
		nmap.WithConnectScan(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithTimingTemplate(nmap.Timing(timing)),
	}

	switch mode.Kind {
	case scan.KindQuick:
		options = append(options, nmap.WithMostCommonPorts(quickScanPorts))
	case scan.KindAdvanced:
		options = append(options,
			nmap.WithPorts(fullPortRange),
			nmap.WithServiceInfo(),
			nmap.WithVersionAll(),
			nmap.WithOSDetection(),
		)
	case scan.KindCustom:
		options = append(options,
			nmap.WithPorts(portList(mode.Ports)),
			nmap.WithServiceInfo(),
		)
	}
	return options, nil
}

// sweepFinding flattens one nmap host into the engine's finding shape. Hosts
// that are down or carry no usable address are skipped.
func sweepFinding(h *nmap.Host) (scan.SweepFinding, bool) {
	if h.Status.State != "up" {
		return scan.SweepFinding{}, false
	}

	var finding scan.SweepFinding
	for _, addr := range h.Addresses {
		switch addr.AddrType {
		case "ipv4":
			finding.Address = addr.Addr
		case "mac":
			finding.MAC = addr.Addr
			finding.MACVendor = addr.Vendor
		}
	}
	if finding.Address == "" {
		return scan.SweepFinding{}, false
	}

	if len(h.Hostnames) > 0 {
		finding.Hostname = h.Hostnames[0].Name
	}
	finding.LatencyMs = srttMillis(h.Times.SRTT)
	finding.Ports = openPorts(h.Ports)
	return finding, true
}

func openPorts(ports []nmap.Port) []scan.PortFinding {
	var open []scan.PortFinding
	for i := range ports {
		p := &ports[i]
		if p.State.State != "open" || !strings.EqualFold(p.Protocol, "tcp") {
			continue
		}
		open = append(open, scan.PortFinding{Port: int(p.ID), Label: p.Service.Name})
	}
	return open
}

// bestOSMatch returns nmap's top OS guess; the tool orders matches by
// accuracy already.
func bestOSMatch(h *nmap.Host) string {
	if len(h.OS.Matches) == 0 {
		return ""
	}
	return h.OS.Matches[0].Name
}

// srttMillis converts nmap's smoothed round-trip attribute (microseconds as
// text) into milliseconds.
func srttMillis(srtt string) float64 {
	us, err := strconv.ParseFloat(strings.TrimSpace(srtt), 64)
	if err != nil || us <= 0 {
		return 0
	}
	return us / 1000
}

func portList(ports []int) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}

func hasPort(ports []scan.PortFinding, want int) bool {
	for _, p := range ports {
		if p.Port == want {
			return true
		}
	}
	return false
}

func setMetadata(findings *scan.DeepFindings, key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	if findings.Metadata == nil {
		findings.Metadata = make(map[string]map[string]string)
	}
	findings.Metadata[key] = fields
}
