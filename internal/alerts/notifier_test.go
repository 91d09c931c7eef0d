package alerts

import (
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/ledger"
)

func TestNotify_deliversSignedEvent(t *testing.T) {
	const secret = "topsecret"

	type received struct {
		body      []byte
		signature string
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{body: body, signature: r.Header.Get("X-Audit-Signature")}
	}))
	defer srv.Close()

	n := New(srv.URL, secret, zap.NewNop())

	outcome := make(chan bool, 1)
	n.SetMetricsRecorder(func(success bool) { outcome <- success })

	entry := &ledger.Entry{
		ID:                 "entry-1",
		EventType:          ledger.EventTransactionExecuted,
		Actor:              "svc:custody",
		ComplianceRelevant: true,
	}
	n.Notify(entry)

	var rec received
	select {
	case rec = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never called")
	}

	want := signPayload(rec.body, []byte(secret))
	if !hmac.Equal([]byte(rec.signature), []byte(want)) {
		t.Errorf("signature mismatch: got %q, want %q", rec.signature, want)
	}

	var ev Event
	if err := json.Unmarshal(rec.body, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "audit.compliance_entry" {
		t.Errorf("event type: got %q", ev.Type)
	}
	if ev.Entry == nil || ev.Entry.ID != "entry-1" {
		t.Errorf("event entry: got %+v", ev.Entry)
	}

	select {
	case success := <-outcome:
		if !success {
			t.Error("delivery reported as failed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("metrics recorder never called")
	}
}

func TestNotify_emptyURLDisablesDelivery(t *testing.T) {
	n := New("", "secret", zap.NewNop())

	called := make(chan bool, 1)
	n.SetMetricsRecorder(func(success bool) { called <- success })

	n.Notify(&ledger.Entry{ID: "entry-1"})

	select {
	case <-called:
		t.Error("delivery attempted with empty URL")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotify_reportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := New(srv.URL, "secret", zap.NewNop())

	outcome := make(chan bool, 1)
	n.SetMetricsRecorder(func(success bool) { outcome <- success })

	n.Notify(&ledger.Entry{ID: "entry-1"})

	select {
	case success := <-outcome:
		if success {
			t.Error("failed delivery reported as success")
		}
	case <-time.After(15 * time.Second):
		t.Fatal("metrics recorder never called")
	}
}
