package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"netscout/internal/errors"
	"netscout/internal/logging"
)

// SessionConfig describes one discovery run.
type SessionConfig struct {
	// Target is the address range to sweep, an IPv4 CIDR or single address.
	Target string `json:"target"`
	// SweepWeight is the share of the progress bar covered by the sweep
	// phase, in (0,1).
	SweepWeight float64 `json:"sweepWeight"`
	// ResolveWindow bounds the service-discovery phase.
	ResolveWindow time.Duration `json:"resolveWindow"`
	// CancelGrace bounds how long a cancelled session waits for worker
	// terminals before forcing them.
	CancelGrace time.Duration `json:"cancelGrace"`
	// ProgressInterval is the cadence of progress emission.
	ProgressInterval time.Duration `json:"progressInterval"`
}

// Validate checks the configuration, filling defaults for zero values.
func (c *SessionConfig) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target is required")
	}
	if c.SweepWeight == 0 {
		c.SweepWeight = 0.6
	}
	if c.SweepWeight <= 0 || c.SweepWeight >= 1 {
		return fmt.Errorf("sweep weight %v outside (0,1)", c.SweepWeight)
	}
	if c.ResolveWindow == 0 {
		c.ResolveWindow = 15 * time.Second
	}
	if c.ResolveWindow < 0 {
		return fmt.Errorf("resolve window cannot be negative")
	}
	if c.CancelGrace == 0 {
		c.CancelGrace = 10 * time.Second
	}
	if c.CancelGrace < 0 {
		return fmt.Errorf("cancel grace cannot be negative")
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = 200 * time.Millisecond
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative")
	}
	return nil
}

// Session orchestrates one discovery run: it launches the sweep and
// resolution workers in parallel, folds their progress into one two-segment
// signal, and finalises once both have emitted their terminal events. A
// session runs once; a new scan needs a new session.
type Session struct {
	id       uuid.UUID
	cfg      SessionConfig
	registry *Registry
	sweeper  Sweeper
	browser  Browser
	emit     *emitter
	log      *zap.SugaredLogger

	mu            sync.Mutex
	state         SessionState
	started       time.Time
	cancelled     bool
	sweepDone     bool
	resolveDone   bool
	sweepErr      error
	resolveErr    error
	sweepFraction float64
	lastOverall   float64
	cancel        context.CancelFunc
	watchdog      *time.Timer
	done          chan struct{}

	// emitMu serialises event emission so listeners observe progress in the
	// order it was computed. Acquired while holding mu, released after the
	// emit, so compute order and delivery order cannot diverge.
	emitMu sync.Mutex
}

// NewSession builds a session. The registry is cleared when the session
// starts, not here, so results of the previous run stay visible until then.
func NewSession(cfg SessionConfig, registry *Registry, sweeper Sweeper, browser Browser, emit *emitter) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if emit == nil {
		emit = &emitter{}
	}
	return &Session{
		id:       uuid.New(),
		cfg:      cfg,
		registry: registry,
		sweeper:  sweeper,
		browser:  browser,
		emit:     emit,
		log:      logging.Component("session"),
		state:    StateIdle,
		done:     make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id.String()
}

// Start clears the registry and launches both workers. It is valid once per
// session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrScanInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = time.Now()
	s.state = StateSweeping
	s.mu.Unlock()

	s.registry.Clear()
	s.log.Infow("session started", "id", s.id, "target", s.cfg.Target, "resolveWindow", s.cfg.ResolveWindow)

	sweep := newSweepWorker(s.sweeper, s.registry, s.log.Named("sweep"), s.onSweepProgress, func(err error) {
		s.phaseDone(PhaseSweep, err)
	})
	resolve := newResolveWorker(s.browser, s.registry, s.cfg.ResolveWindow, s.log.Named("resolve"), func(err error) {
		s.phaseDone(PhaseResolve, err)
	})

	go sweep.run(runCtx, s.cfg.Target)
	go resolve.run(runCtx)
	go s.progressLoop()

	s.emitProgress()
	return nil
}

// Cancel requests cooperative cancellation of both workers. The session
// still reaches done, keeping every host merged so far; a watchdog forces
// the terminal events if a worker fails to stop within the grace bound.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateSweeping && s.state != StateResolving {
		s.mu.Unlock()
		return ErrNoActiveScan
	}
	s.state = StateCancelling
	s.cancelled = true
	cancel := s.cancel
	s.watchdog = time.AfterFunc(s.cfg.CancelGrace, s.forceTerminals)
	s.mu.Unlock()

	s.log.Infow("session cancelling", "id", s.id)
	cancel()
	s.emitProgress()
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches its terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finishes or the context expires.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

// Progress returns the current combined progress value.
func (s *Session) Progress() Progress {
	hosts := s.registry.Len()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked(hosts)
}

// progressLocked computes the two-segment progress. Segment A spans
// SweepWeight of the bar and completes only on the sweep terminal; segment B
// is a time heuristic over the resolution window and completes only on the
// resolution terminal. The value is clamped so it never regresses.
func (s *Session) progressLocked(hosts int) Progress {
	var elapsed time.Duration
	if !s.started.IsZero() {
		elapsed = time.Since(s.started)
	}

	var overall float64
	switch {
	case s.state == StateIdle:
		overall = 0
	case s.state == StateDone:
		overall = 1
	case !s.sweepDone:
		overall = s.cfg.SweepWeight * s.sweepFraction
	default:
		frac := float64(elapsed) / float64(s.cfg.ResolveWindow)
		if frac > 0.99 {
			frac = 0.99
		}
		overall = s.cfg.SweepWeight + (1-s.cfg.SweepWeight)*frac
	}
	if overall < s.lastOverall {
		overall = s.lastOverall
	}
	s.lastOverall = overall

	return Progress{
		State:       s.state,
		Overall:     overall,
		SweepDone:   s.sweepDone,
		ResolveDone: s.resolveDone,
		Hosts:       hosts,
		Elapsed:     elapsed.Seconds(),
	}
}

func (s *Session) onSweepProgress(fraction float64) {
	s.mu.Lock()
	if !s.sweepDone && fraction > s.sweepFraction {
		s.sweepFraction = fraction
	}
	s.mu.Unlock()
	s.emitProgress()
}

// emitProgress computes and delivers one progress event. The emit lock is
// taken before the state lock is released, so concurrent emitters deliver in
// compute order.
func (s *Session) emitProgress() {
	hosts := s.registry.Len()
	s.mu.Lock()
	progress := s.progressLocked(hosts)
	s.emitMu.Lock()
	s.mu.Unlock()
	s.emit.progress(progress)
	s.emitMu.Unlock()
}

// phaseDone records a worker terminal event. It is idempotent per phase:
// the worker's own terminal and a watchdog-forced one cannot double-fire.
func (s *Session) phaseDone(phase Phase, err error) {
	hosts := s.registry.Len()

	s.mu.Lock()
	switch phase {
	case PhaseSweep:
		if s.sweepDone {
			s.mu.Unlock()
			return
		}
		s.sweepDone = true
		s.sweepErr = err
		s.sweepFraction = 1
		if s.state == StateSweeping {
			s.state = StateResolving
		}
	case PhaseResolve:
		if s.resolveDone {
			s.mu.Unlock()
			return
		}
		s.resolveDone = true
		s.resolveErr = err
	default:
		s.mu.Unlock()
		return
	}

	finished := s.sweepDone && s.resolveDone && s.state != StateDone
	var summary Summary
	if finished {
		s.state = StateDone
		if s.watchdog != nil {
			s.watchdog.Stop()
		}
		duration := time.Since(s.started)
		summary = Summary{
			SessionID:    s.id.String(),
			Hosts:        hosts,
			Duration:     duration,
			DurationSecs: duration.Seconds(),
			Cancelled:    s.cancelled,
			SweepError:   errString(s.sweepErr),
			ResolveError: errString(s.resolveErr),
		}
	}
	progress := s.progressLocked(hosts)
	cancel := s.cancel
	s.emitMu.Lock()
	s.mu.Unlock()

	s.emit.phaseDone(PhaseDone{Phase: phase, Error: errString(err)})
	s.emit.progress(progress)
	if finished {
		s.log.Infow("session done", "id", s.id, "hosts", summary.Hosts, "cancelled", summary.Cancelled,
			"sweepError", summary.SweepError, "resolveError", summary.ResolveError)
		s.emit.sessionDone(summary)
		close(s.done)
	}
	s.emitMu.Unlock()
	if finished {
		cancel()
	}
}

// forceTerminals synthesises terminal events for workers that missed the
// cancellation grace bound, so the session always reaches done.
func (s *Session) forceTerminals() {
	s.mu.Lock()
	pending := make([]Phase, 0, 2)
	if !s.sweepDone {
		pending = append(pending, PhaseSweep)
	}
	if !s.resolveDone {
		pending = append(pending, PhaseResolve)
	}
	s.mu.Unlock()

	for _, phase := range pending {
		s.log.Warnw("worker missed cancellation grace, forcing terminal", "phase", phase)
		s.phaseDone(phase, errors.Newf(errors.CodeTimeout, "%s worker did not stop within %s", phase, s.cfg.CancelGrace))
	}
}

func (s *Session) progressLoop() {
	ticker := time.NewTicker(s.cfg.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.emitProgress()
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
