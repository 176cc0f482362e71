package scan

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"netscout/internal/errors"
)

// fakeSweeper emits a fixed set of findings with stepped progress, then
// optionally blocks until released or cancelled.
type fakeSweeper struct {
	findings  []SweepFinding
	err       error
	block     chan struct{}
	ignoreCtx bool
	started   chan struct{}
}

func (f *fakeSweeper) Sweep(ctx context.Context, target string, emit func(SweepFinding), progress func(float64)) error {
	if f.started != nil {
		close(f.started)
	}
	for i, finding := range f.findings {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		emit(finding)
		progress(float64(i+1) / float64(len(f.findings)))
	}
	if f.block != nil {
		if f.ignoreCtx {
			<-f.block
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.block:
			}
		}
	}
	return f.err
}

// fakeBrowser emits records and then either returns immediately or waits out
// the resolution window.
type fakeBrowser struct {
	records   []ServiceRecord
	err       error
	immediate bool
}

func (f *fakeBrowser) Browse(ctx context.Context, emit func(ServiceRecord)) error {
	for _, rec := range f.records {
		emit(rec)
	}
	if f.immediate {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

// eventRecorder collects emitted events for assertions.
type eventRecorder struct {
	mu        sync.Mutex
	updates   []HostRecord
	progress  []Progress
	phases    []PhaseDone
	summaries []Summary
	deepDone  []DeepScanResult
}

func (r *eventRecorder) listener() Listener {
	return Listener{
		HostUpdated: func(rec HostRecord) {
			r.mu.Lock()
			r.updates = append(r.updates, rec)
			r.mu.Unlock()
		},
		Progress: func(p Progress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		PhaseDone: func(p PhaseDone) {
			r.mu.Lock()
			r.phases = append(r.phases, p)
			r.mu.Unlock()
		},
		SessionDone: func(s Summary) {
			r.mu.Lock()
			r.summaries = append(r.summaries, s)
			r.mu.Unlock()
		},
		DeepScanDone: func(d DeepScanResult) {
			r.mu.Lock()
			r.deepDone = append(r.deepDone, d)
			r.mu.Unlock()
		},
	}
}

func (r *eventRecorder) snapshot() ([]Progress, []PhaseDone, []Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.progress...),
		append([]PhaseDone(nil), r.phases...),
		append([]Summary(nil), r.summaries...)
}

func (r *eventRecorder) phaseCount(phase Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, p := range r.phases {
		if p.Phase == phase {
			count++
		}
	}
	return count
}

func newTestSession(t *testing.T, cfg SessionConfig, sweeper Sweeper, browser Browser) (*Session, *eventRecorder) {
	t.Helper()
	recorder := &eventRecorder{}
	emit := &emitter{}
	emit.add(recorder.listener())
	registry := newTestRegistry()
	registry.SetUpdateHandler(emit.hostUpdated)
	session, err := NewSession(cfg, registry, sweeper, browser, emit)
	if err != nil {
		t.Fatalf("unexpected error creating session: %v", err)
	}
	return session, recorder
}

func waitSessionDone(t *testing.T, session *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Wait(ctx); err != nil {
		t.Fatalf("session did not finish: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func assertProgressInvariants(t *testing.T, events []Progress) {
	t.Helper()
	last := -1.0
	for i, p := range events {
		if p.Overall < 0 || p.Overall > 1 {
			t.Fatalf("progress %d out of range: %v", i, p.Overall)
		}
		if p.Overall < last {
			t.Fatalf("progress regressed at %d: %v after %v", i, p.Overall, last)
		}
		if p.Overall == 1 && p.State != StateDone {
			t.Fatalf("progress %d reports 100%% in state %s", i, p.State)
		}
		if p.State == StateDone && p.Overall != 1 {
			t.Fatalf("progress %d reports done at %v", i, p.Overall)
		}
		last = p.Overall
	}
}

func TestSessionConfigDefaults(t *testing.T) {
	cfg := SessionConfig{Target: "192.168.1.0/24"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SweepWeight != 0.6 || cfg.ResolveWindow != 15*time.Second ||
		cfg.CancelGrace != 10*time.Second || cfg.ProgressInterval != 200*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	bad := []SessionConfig{
		{},
		{Target: "10.0.0.0/24", SweepWeight: 1.5},
		{Target: "10.0.0.0/24", ResolveWindow: -time.Second},
		{Target: "10.0.0.0/24", CancelGrace: -time.Second},
		{Target: "10.0.0.0/24", ProgressInterval: -time.Millisecond},
	}
	for idx, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("expected validation error for config %d", idx)
		}
	}
}

func TestSessionRunsToCompletion(t *testing.T) {
	sweeper := &fakeSweeper{findings: []SweepFinding{
		{Address: "10.0.0.5", MAC: "00:1B:A9:01:02:03", Ports: []PortFinding{{Port: 631, Label: "ipp"}}},
		{Address: "10.0.0.9", MAC: "00:11:32:AA:BB:CC", Hostname: "nas.local"},
	}}
	browser := &fakeBrowser{immediate: true, records: []ServiceRecord{
		{Address: "10.0.0.5", Service: "_ipp._tcp", Port: 631, Text: map[string]string{"ty": "Brother HL-L2350DW"}},
	}}

	session, recorder := newTestSession(t, SessionConfig{
		Target:           "10.0.0.0/24",
		ResolveWindow:    100 * time.Millisecond,
		ProgressInterval: 10 * time.Millisecond,
	}, sweeper, browser)

	if session.State() != StateIdle {
		t.Fatalf("expected idle before start, got %s", session.State())
	}
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSessionDone(t, session)

	if session.State() != StateDone {
		t.Fatalf("expected done, got %s", session.State())
	}
	progress, _, summaries := recorder.snapshot()
	assertProgressInvariants(t, progress)
	if len(progress) == 0 || progress[len(progress)-1].Overall != 1 {
		t.Fatalf("expected final progress of 1, got %v", progress)
	}
	if recorder.phaseCount(PhaseSweep) != 1 || recorder.phaseCount(PhaseResolve) != 1 {
		t.Fatalf("expected exactly one terminal per phase, got %+v", recorder.phases)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(summaries))
	}
	summary := summaries[0]
	if summary.Cancelled || summary.SweepError != "" || summary.ResolveError != "" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Hosts != 2 {
		t.Fatalf("expected 2 hosts, got %d", summary.Hosts)
	}
	if summary.SessionID != session.ID() {
		t.Fatalf("summary session id mismatch")
	}
	if p := session.Progress(); p.Overall != 1 || p.State != StateDone {
		t.Fatalf("expected settled progress, got %+v", p)
	}
}

func TestSessionSweepErrorStillCompletes(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.Newf(errors.CodeToolUnavailable, "nmap binary was not found")}
	browser := &fakeBrowser{immediate: true}

	session, recorder := newTestSession(t, SessionConfig{
		Target:           "10.0.0.0/24",
		ResolveWindow:    50 * time.Millisecond,
		ProgressInterval: 10 * time.Millisecond,
	}, sweeper, browser)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSessionDone(t, session)

	_, phases, summaries := recorder.snapshot()
	if len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(summaries))
	}
	if !strings.Contains(summaries[0].SweepError, "nmap") {
		t.Fatalf("expected sweep error in summary, got %+v", summaries[0])
	}
	foundSweepError := false
	for _, p := range phases {
		if p.Phase == PhaseSweep && p.Error != "" {
			foundSweepError = true
		}
	}
	if !foundSweepError {
		t.Fatalf("expected sweep terminal to carry the error, got %+v", phases)
	}
	if session.State() != StateDone {
		t.Fatalf("worker error must not prevent completion, got %s", session.State())
	}
}

func TestSessionCancelMidSweepKeepsHosts(t *testing.T) {
	sweeper := &fakeSweeper{
		findings: []SweepFinding{
			{Address: "10.0.0.1"},
			{Address: "10.0.0.2"},
			{Address: "10.0.0.3"},
		},
		block: make(chan struct{}),
	}
	browser := &fakeBrowser{}

	session, recorder := newTestSession(t, SessionConfig{
		Target:           "10.0.0.0/24",
		ResolveWindow:    time.Minute,
		ProgressInterval: 10 * time.Millisecond,
	}, sweeper, browser)

	registry := session.registry
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "3 hosts discovered", func() bool { return registry.Len() == 3 })

	if err := session.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSessionDone(t, session)

	if session.State() != StateDone {
		t.Fatalf("expected done after cancel, got %s", session.State())
	}
	if registry.Len() != 3 {
		t.Fatalf("cancel discarded results: %d hosts", registry.Len())
	}
	progress, _, summaries := recorder.snapshot()
	assertProgressInvariants(t, progress)
	if len(summaries) != 1 || !summaries[0].Cancelled {
		t.Fatalf("expected cancelled summary, got %+v", summaries)
	}
	if summaries[0].Hosts != 3 {
		t.Fatalf("expected 3 hosts in summary, got %d", summaries[0].Hosts)
	}
	// Interrupting the workers is not a failure.
	if summaries[0].SweepError != "" || summaries[0].ResolveError != "" {
		t.Fatalf("cancellation must not surface as error: %+v", summaries[0])
	}
	if recorder.phaseCount(PhaseSweep) != 1 || recorder.phaseCount(PhaseResolve) != 1 {
		t.Fatalf("expected exactly one terminal per phase, got %+v", recorder.phases)
	}
}

func TestSessionHoldsDoneUntilSweepFinishes(t *testing.T) {
	release := make(chan struct{})
	sweeper := &fakeSweeper{
		findings: []SweepFinding{{Address: "10.0.0.1"}},
		block:    release,
	}
	browser := &fakeBrowser{immediate: true}

	session, recorder := newTestSession(t, SessionConfig{
		Target:           "10.0.0.0/24",
		ResolveWindow:    50 * time.Millisecond,
		ProgressInterval: 10 * time.Millisecond,
	}, sweeper, browser)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "resolve terminal", func() bool { return recorder.phaseCount(PhaseResolve) == 1 })

	// The resolution terminal arrived first; the session must keep running
	// until the sweep finishes too.
	select {
	case <-session.Done():
		t.Fatalf("session finished before sweep terminal")
	case <-time.After(50 * time.Millisecond):
	}
	if state := session.State(); state != StateSweeping {
		t.Fatalf("expected sweeping while sweep is live, got %s", state)
	}

	close(release)
	waitSessionDone(t, session)
	if session.State() != StateDone {
		t.Fatalf("expected done, got %s", session.State())
	}
	progress, _, _ := recorder.snapshot()
	assertProgressInvariants(t, progress)
}

func TestSessionWatchdogForcesTerminals(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	sweeper := &fakeSweeper{block: release, ignoreCtx: true, started: started}
	browser := &fakeBrowser{}

	session, recorder := newTestSession(t, SessionConfig{
		Target:           "10.0.0.0/24",
		ResolveWindow:    time.Minute,
		CancelGrace:      30 * time.Millisecond,
		ProgressInterval: 10 * time.Millisecond,
	}, sweeper, browser)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started
	if err := session.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSessionDone(t, session)
	close(release)

	_, phases, summaries := recorder.snapshot()
	if len(summaries) != 1 || !summaries[0].Cancelled {
		t.Fatalf("expected cancelled summary, got %+v", summaries)
	}
	if !strings.Contains(summaries[0].SweepError, "did not stop") {
		t.Fatalf("expected forced sweep terminal, got %+v", summaries[0])
	}
	sweepErrors := 0
	for _, p := range phases {
		if p.Phase == PhaseSweep {
			if p.Error == "" {
				t.Fatalf("forced sweep terminal should carry an error")
			}
			sweepErrors++
		}
	}
	if sweepErrors != 1 {
		t.Fatalf("expected one sweep terminal, got %d", sweepErrors)
	}
}

func TestSessionLifecycleGuards(t *testing.T) {
	if _, err := NewSession(SessionConfig{}, newTestRegistry(), &fakeSweeper{}, &fakeBrowser{}, nil); err == nil {
		t.Fatalf("expected error for missing target")
	}

	sweeper := &fakeSweeper{block: make(chan struct{})}
	session, _ := newTestSession(t, SessionConfig{
		Target:           "10.0.0.0/24",
		ResolveWindow:    time.Minute,
		ProgressInterval: 10 * time.Millisecond,
	}, sweeper, &fakeBrowser{})

	if err := session.Cancel(); err != ErrNoActiveScan {
		t.Fatalf("expected ErrNoActiveScan before start, got %v", err)
	}
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := session.Start(context.Background()); err != ErrScanInProgress {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}
	if err := session.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSessionDone(t, session)
	if err := session.Cancel(); err != ErrNoActiveScan {
		t.Fatalf("expected ErrNoActiveScan after done, got %v", err)
	}
}
