package scan

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"netscout/internal/logging"
)

// emitter fans events out to registered listeners. Listener callbacks run on
// the goroutine that produced the event, so they must return quickly.
type emitter struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (e *emitter) add(l Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

func (e *emitter) hostUpdated(rec HostRecord) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, l := range e.listeners {
		if l.HostUpdated != nil {
			l.HostUpdated(rec)
		}
	}
}

func (e *emitter) progress(p Progress) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, l := range e.listeners {
		if l.Progress != nil {
			l.Progress(p)
		}
	}
}

func (e *emitter) phaseDone(p PhaseDone) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, l := range e.listeners {
		if l.PhaseDone != nil {
			l.PhaseDone(p)
		}
	}
}

func (e *emitter) sessionDone(s Summary) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, l := range e.listeners {
		if l.SessionDone != nil {
			l.SessionDone(s)
		}
	}
}

func (e *emitter) deepScanDone(r DeepScanResult) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, l := range e.listeners {
		if l.DeepScanDone != nil {
			l.DeepScanDone(r)
		}
	}
}

// Engine is the front door for scanning: it owns the registry, runs at most
// one session at a time, and manages deep scans. All methods are safe for
// concurrent use.
type Engine struct {
	registry *Registry
	sweeper  Sweeper
	browser  Browser
	deep     *DeepScanner
	emit     *emitter
	log      *zap.SugaredLogger

	mu      sync.Mutex
	session *Session
}

// NewEngine wires an engine from its collaborators. Rule tables may be nil
// to use the built-in defaults.
func NewEngine(sweeper Sweeper, browser Browser, prober DeepProber, resolver *VendorResolver, classifier *IconClassifier) *Engine {
	emit := &emitter{}
	registry := NewRegistry(resolver, classifier)
	registry.SetUpdateHandler(emit.hostUpdated)
	return &Engine{
		registry: registry,
		sweeper:  sweeper,
		browser:  browser,
		deep:     NewDeepScanner(prober, registry, emit),
		emit:     emit,
		log:      logging.Component("engine"),
	}
}

// AddListener registers an event listener. Listeners added after a scan
// started miss the events already emitted.
func (e *Engine) AddListener(l Listener) {
	e.emit.add(l)
}

// StartScan begins a new discovery session. Results of the previous session
// are cleared. Returns ErrScanInProgress while a session is active.
func (e *Engine) StartScan(ctx context.Context, cfg SessionConfig) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		select {
		case <-e.session.Done():
		default:
			return nil, ErrScanInProgress
		}
	}

	session, err := NewSession(cfg, e.registry, e.sweeper, e.browser, e.emit)
	if err != nil {
		return nil, err
	}
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	e.session = session
	return session, nil
}

// CancelScan cancels the active session, if any.
func (e *Engine) CancelScan() error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return ErrNoActiveScan
	}
	return session.Cancel()
}

// Session returns the most recent session, or nil before the first scan.
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Status returns the progress of the most recent session. Before the first
// scan it reports an idle zero value.
func (e *Engine) Status() Progress {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return Progress{State: StateIdle}
	}
	return session.Progress()
}

// StartDeepScan launches a focused scan of one host.
func (e *Engine) StartDeepScan(ctx context.Context, host string, mode DeepScanMode) (*DeepScan, error) {
	return e.deep.Start(ctx, host, mode)
}

// ActiveDeepScans lists hosts with a deep scan in flight.
func (e *Engine) ActiveDeepScans() []string {
	return e.deep.Active()
}

// Hosts returns every known host in first-seen order.
func (e *Engine) Hosts() []HostRecord {
	return e.registry.All()
}

// Host returns one host by address.
func (e *Engine) Host(address string) (HostRecord, bool) {
	return e.registry.Get(address)
}
