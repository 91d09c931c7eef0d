package health

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/ledger"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubVerifier struct {
	err error
}

func (s *stubVerifier) Verify(_ context.Context) error { return s.err }

type incidentLog struct {
	reasons []string
}

func (l *incidentLog) record(_ context.Context, reason string) {
	l.reasons = append(l.reasons, reason)
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestSweep_intactChain(t *testing.T) {
	v := &stubVerifier{}
	incidents := &incidentLog{}

	c := New(v, nil, Config{}, zap.NewNop())
	c.SetIncidentFunc(incidents.record)

	var results []bool
	c.SetMetricsRecord(func(success bool) { results = append(results, success) })

	c.Sweep(context.Background())

	if len(incidents.reasons) != 0 {
		t.Errorf("incident raised on intact chain: %v", incidents.reasons)
	}
	if len(results) != 1 || !results[0] {
		t.Errorf("metrics: got %v, want one success", results)
	}
}

func TestSweep_integrityFailureIsImmediateIncident(t *testing.T) {
	v := &stubVerifier{err: &ledger.VerifyError{EntryID: "entry-3", Reason: ledger.ReasonHashMismatch}}
	incidents := &incidentLog{}

	c := New(v, nil, Config{FailThreshold: 5}, zap.NewNop())
	c.SetIncidentFunc(incidents.record)

	c.Sweep(context.Background())

	if len(incidents.reasons) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(incidents.reasons))
	}
}

func TestSweep_standingFailureReportedOnce(t *testing.T) {
	v := &stubVerifier{err: &ledger.VerifyError{EntryID: "entry-3", Reason: ledger.ReasonChainBreak}}
	incidents := &incidentLog{}

	c := New(v, nil, Config{}, zap.NewNop())
	c.SetIncidentFunc(incidents.record)

	for i := 0; i < 4; i++ {
		c.Sweep(context.Background())
	}
	if len(incidents.reasons) != 1 {
		t.Errorf("standing failure reported %d times, want 1", len(incidents.reasons))
	}

	// Recovery re-arms the latch.
	v.err = nil
	c.Sweep(context.Background())
	v.err = &ledger.VerifyError{EntryID: "entry-7", Reason: ledger.ReasonHashMismatch}
	c.Sweep(context.Background())

	if len(incidents.reasons) != 2 {
		t.Errorf("new failure after recovery reported %d times total, want 2", len(incidents.reasons))
	}
}

func TestSweep_storeErrorsNeedThreshold(t *testing.T) {
	v := &stubVerifier{err: errors.New("connection refused")}
	incidents := &incidentLog{}

	c := New(v, nil, Config{FailThreshold: 3}, zap.NewNop())
	c.SetIncidentFunc(incidents.record)

	c.Sweep(context.Background())
	c.Sweep(context.Background())
	if len(incidents.reasons) != 0 {
		t.Fatalf("incident before threshold: %v", incidents.reasons)
	}

	c.Sweep(context.Background())
	if len(incidents.reasons) != 1 {
		t.Errorf("expected 1 incident at threshold, got %d", len(incidents.reasons))
	}

	// Past the threshold the streak keeps counting but does not re-report.
	c.Sweep(context.Background())
	if len(incidents.reasons) != 1 {
		t.Errorf("incident re-reported past threshold")
	}
}

func TestSweep_respectsToggle(t *testing.T) {
	v := &stubVerifier{err: &ledger.VerifyError{EntryID: "entry-1", Reason: ledger.ReasonHashMismatch}}
	incidents := &incidentLog{}

	c := New(v, func() bool { return false }, Config{}, zap.NewNop())
	c.SetIncidentFunc(incidents.record)

	c.Sweep(context.Background())
	if len(incidents.reasons) != 0 {
		t.Errorf("sweep ran while disabled")
	}
}
