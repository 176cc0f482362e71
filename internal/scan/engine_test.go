package scan

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// sweeperFunc adapts a function to the Sweeper interface.
type sweeperFunc func(ctx context.Context, target string, emit func(SweepFinding), progress func(float64)) error

func (f sweeperFunc) Sweep(ctx context.Context, target string, emit func(SweepFinding), progress func(float64)) error {
	return f(ctx, target, emit, progress)
}

func newTestEngine(sweeper Sweeper, browser Browser, prober DeepProber) (*Engine, *eventRecorder) {
	engine := NewEngine(sweeper, browser, prober, NewVendorResolver(nil), NewIconClassifier(nil))
	recorder := &eventRecorder{}
	engine.AddListener(recorder.listener())
	return engine, recorder
}

func fastConfig(target string) SessionConfig {
	return SessionConfig{
		Target:           target,
		ResolveWindow:    50 * time.Millisecond,
		ProgressInterval: 10 * time.Millisecond,
	}
}

func TestEngineIdleBeforeFirstScan(t *testing.T) {
	engine, _ := newTestEngine(&fakeSweeper{}, &fakeBrowser{immediate: true}, &fakeProber{})

	status := engine.Status()
	if status.State != StateIdle || status.Overall != 0 {
		t.Fatalf("expected idle status, got %+v", status)
	}
	if err := engine.CancelScan(); err != ErrNoActiveScan {
		t.Fatalf("expected ErrNoActiveScan, got %v", err)
	}
	if hosts := engine.Hosts(); len(hosts) != 0 {
		t.Fatalf("expected no hosts, got %v", hosts)
	}
}

func TestEngineSingleSessionAtATime(t *testing.T) {
	// The first run discovers one host and blocks until cancelled; later
	// runs finish without findings.
	var runs int32
	sweeper := sweeperFunc(func(ctx context.Context, target string, emit func(SweepFinding), progress func(float64)) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			emit(SweepFinding{Address: "10.0.0.1"})
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	engine, _ := newTestEngine(sweeper, &fakeBrowser{}, &fakeProber{})

	session, err := engine.StartScan(context.Background(), fastConfig("10.0.0.0/24"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.StartScan(context.Background(), fastConfig("10.0.0.0/24")); err != ErrScanInProgress {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}

	if err := engine.CancelScan(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSessionDone(t, session)

	// Hosts survive the cancelled session until the next scan starts.
	if len(engine.Hosts()) != 1 {
		t.Fatalf("expected 1 host after cancel, got %d", len(engine.Hosts()))
	}

	second, err := engine.StartScan(context.Background(), fastConfig("10.0.1.0/24"))
	if err != nil {
		t.Fatalf("expected new scan after done, got %v", err)
	}
	waitSessionDone(t, second)

	// The empty second sweep cleared the previous results.
	if len(engine.Hosts()) != 0 {
		t.Fatalf("expected registry cleared by new scan, got %v", engine.Hosts())
	}
	if session.ID() == second.ID() {
		t.Fatalf("expected distinct session ids")
	}
}

func TestEngineFansOutHostUpdates(t *testing.T) {
	sweeper := &fakeSweeper{findings: []SweepFinding{
		{Address: "10.0.0.5", MAC: "00:1B:A9:01:02:03", Ports: []PortFinding{{Port: 631, Label: "ipp"}}},
	}}
	engine, recorder := newTestEngine(sweeper, &fakeBrowser{immediate: true}, &fakeProber{})

	session, err := engine.StartScan(context.Background(), fastConfig("10.0.0.0/24"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSessionDone(t, session)

	recorder.mu.Lock()
	updates := len(recorder.updates)
	recorder.mu.Unlock()
	if updates == 0 {
		t.Fatalf("expected host update events")
	}

	rec, ok := engine.Host("10.0.0.5")
	if !ok {
		t.Fatalf("expected host lookup to succeed")
	}
	if rec.Vendor != "Brother" || rec.IconKey != "printer" {
		t.Fatalf("expected enriched record, got %+v", rec)
	}
	if engine.Status().State != StateDone {
		t.Fatalf("expected done status, got %+v", engine.Status())
	}
}

func TestEngineDeepScanFacade(t *testing.T) {
	prober := &fakeProber{findings: map[string]DeepFindings{
		"10.0.0.9": {Ports: []PortFinding{{Port: 22, Label: "ssh"}}},
	}}
	engine, _ := newTestEngine(&fakeSweeper{}, &fakeBrowser{immediate: true}, prober)

	scan, err := engine.StartDeepScan(context.Background(), "10.0.0.9", DeepScanMode{Kind: KindQuick})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := waitDeepScan(t, scan)
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(engine.ActiveDeepScans()) != 0 {
		t.Fatalf("expected no active scans after done, got %v", engine.ActiveDeepScans())
	}
	rec, ok := engine.Host("10.0.0.9")
	if !ok || !rec.HasPort(22) {
		t.Fatalf("expected deep scan results in registry, got %+v", rec)
	}
}
