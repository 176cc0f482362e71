package scan

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HostRecord is the canonical view of one discovered host, fused from every
// source that reported it. Records are returned by value; mutating a copy has
// no effect on the registry.
type HostRecord struct {
	Address     string                       `json:"address"`
	MAC         string                       `json:"mac,omitempty"`
	Hostname    string                       `json:"hostname,omitempty"`
	Vendor      string                       `json:"vendor,omitempty"`
	Model       string                       `json:"model,omitempty"`
	OSGuess     string                       `json:"osGuess,omitempty"`
	LatencyMs   float64                      `json:"latencyMs,omitempty"`
	Ports       []int                        `json:"ports,omitempty"`
	Services    map[int]string               `json:"services,omitempty"`
	Metadata    map[string]map[string]string `json:"metadata,omitempty"`
	Sources     []string                     `json:"sources,omitempty"`
	IconKey     string                       `json:"iconKey,omitempty"`
	FirstSeen   time.Time                    `json:"firstSeen"`
	LastUpdated time.Time                    `json:"lastUpdated"`

	vendorHint string
}

// HasPort reports whether the record lists the given open port.
func (r HostRecord) HasPort(port int) bool {
	for _, p := range r.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// HostDelta is a partial update for one host, carrying only newly learned
// fields. Zero values mean "nothing new" and never erase existing data.
type HostDelta struct {
	Address    string                       `json:"address"`
	MAC        string                       `json:"mac,omitempty"`
	Hostname   string                       `json:"hostname,omitempty"`
	Model      string                       `json:"model,omitempty"`
	OSGuess    string                       `json:"osGuess,omitempty"`
	VendorHint string                       `json:"vendorHint,omitempty"`
	LatencyMs  float64                      `json:"latencyMs,omitempty"`
	Ports      []int                        `json:"ports,omitempty"`
	Services   map[int]string               `json:"services,omitempty"`
	Metadata   map[string]map[string]string `json:"metadata,omitempty"`
	Source     string                       `json:"source,omitempty"`
}

// PortFinding is one open port reported by a probe, with the label the tool
// assigned to it.
type PortFinding struct {
	Port  int    `json:"port"`
	Label string `json:"label,omitempty"`
}

// SweepFinding is one host reported by the sweep collaborator.
type SweepFinding struct {
	Address   string        `json:"address"`
	MAC       string        `json:"mac,omitempty"`
	MACVendor string        `json:"macVendor,omitempty"`
	Hostname  string        `json:"hostname,omitempty"`
	OSGuess   string        `json:"osGuess,omitempty"`
	LatencyMs float64       `json:"latencyMs,omitempty"`
	Ports     []PortFinding `json:"ports,omitempty"`
}

// ServiceRecord is one resolved multicast service announcement.
type ServiceRecord struct {
	Address  string            `json:"address"`
	Hostname string            `json:"hostname,omitempty"`
	Service  string            `json:"service"`
	Port     int               `json:"port,omitempty"`
	Text     map[string]string `json:"text,omitempty"`
}

// Sweeper drives the bulk host/port discovery phase. Implementations stream
// findings through emit as they arrive and report the covered fraction of the
// address space through progress (0..1, non-decreasing).
type Sweeper interface {
	Sweep(ctx context.Context, target string, emit func(SweepFinding), progress func(float64)) error
}

// Browser drives multicast service discovery until the context expires.
// Hitting the context deadline is normal completion and returns nil.
type Browser interface {
	Browse(ctx context.Context, emit func(ServiceRecord)) error
}

// DeepProber runs a focused scan against one host.
type DeepProber interface {
	DeepScan(ctx context.Context, host string, mode DeepScanMode, progress func(float64)) (DeepFindings, error)
}

// DeepFindings is the refined result of a per-host deep scan.
type DeepFindings struct {
	Ports     []PortFinding                `json:"ports,omitempty"`
	Hostname  string                       `json:"hostname,omitempty"`
	OSGuess   string                       `json:"osGuess,omitempty"`
	LatencyMs float64                      `json:"latencyMs,omitempty"`
	Metadata  map[string]map[string]string `json:"metadata,omitempty"`
}

// ScanKind selects the port range and aggressiveness of a deep scan.
type ScanKind string

const (
	KindQuick    ScanKind = "quick"
	KindAdvanced ScanKind = "advanced"
	KindCustom   ScanKind = "custom"
)

// DeepScanMode configures one deep scan. Ports is honoured for KindCustom
// only.
type DeepScanMode struct {
	Kind  ScanKind `json:"kind"`
	Ports []int    `json:"ports,omitempty"`
}

// Validate checks that the mode is usable.
func (m DeepScanMode) Validate() error {
	switch m.Kind {
	case KindQuick, KindAdvanced:
		return nil
	case KindCustom:
		if len(m.Ports) == 0 {
			return errors.New("custom mode requires at least one port")
		}
		for _, p := range m.Ports {
			if p < 1 || p > 65535 {
				return fmt.Errorf("port %d out of range", p)
			}
		}
		return nil
	case "":
		return errors.New("scan kind is required")
	default:
		return fmt.Errorf("unknown scan kind %q", m.Kind)
	}
}

// SessionState is the lifecycle state of a scan session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateSweeping
	StateResolving
	StateCancelling
	StateDone
)

// String returns a readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSweeping:
		return "sweeping"
	case StateResolving:
		return "resolving"
	case StateCancelling:
		return "cancelling"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string name.
func (s SessionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Progress is the combined two-segment progress of a session. Overall is in
// 0..1, never decreases over a session, and reaches 1 exactly when the
// session reaches done.
type Progress struct {
	State       SessionState `json:"state"`
	Overall     float64      `json:"overall"`
	SweepDone   bool         `json:"sweepDone"`
	ResolveDone bool         `json:"resolveDone"`
	Hosts       int          `json:"hosts"`
	Elapsed     float64      `json:"elapsedSeconds"`
}

// Phase names the two discovery phases in events.
type Phase string

const (
	PhaseSweep   Phase = "sweep"
	PhaseResolve Phase = "resolve"
)

// PhaseDone reports one worker's terminal event. Error is empty when the
// phase ended normally, including by hitting the resolution window.
type PhaseDone struct {
	Phase Phase  `json:"phase"`
	Error string `json:"error,omitempty"`
}

// Summary reports a finished session.
type Summary struct {
	SessionID    string        `json:"sessionId"`
	Hosts        int           `json:"hosts"`
	Duration     time.Duration `json:"-"`
	DurationSecs float64       `json:"durationSeconds"`
	Cancelled    bool          `json:"cancelled"`
	SweepError   string        `json:"sweepError,omitempty"`
	ResolveError string        `json:"resolveError,omitempty"`
}

// DeepScanResult is the terminal event of one deep scan.
type DeepScanResult struct {
	Host     string       `json:"host"`
	Mode     DeepScanMode `json:"mode"`
	Findings DeepFindings `json:"findings"`
	Error    string       `json:"error,omitempty"`
	Duration float64      `json:"durationSeconds"`
}

// Listener receives session and deep-scan events. Nil callbacks are skipped.
// Callbacks run on engine goroutines and must not block.
type Listener struct {
	HostUpdated  func(HostRecord)
	Progress     func(Progress)
	PhaseDone    func(PhaseDone)
	SessionDone  func(Summary)
	DeepScanDone func(DeepScanResult)
}

var (
	// ErrScanInProgress indicates a scan is already running.
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrNoActiveScan indicates there is no running scan to control.
	ErrNoActiveScan = errors.New("no active scan")
)
