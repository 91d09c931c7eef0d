package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/custodia-io/audit-trail/pkg/client"
)

var ctx = context.Background()

// ── Stub server ─────────────────────────────────────────────────────────

func stubAuditServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		var req client.LogEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventType == "" {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"entry_id": "entry-1"})
	})

	mux.HandleFunc("/api/v1/entries", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("actor") != "alice" {
			t.Errorf("actor param: got %q", r.URL.Query().Get("actor"))
		}
		if r.URL.Query().Get("compliance_only") != "true" {
			t.Errorf("compliance_only param missing")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{"id": "entry-1", "timestamp": 100, "actor": "alice", "event_type": "kyc_update"},
			},
		})
	})

	mux.HandleFunc("/api/v1/entries/entry-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"entry": map[string]any{"id": "entry-1", "actor": "alice"},
		})
	})

	mux.HandleFunc("/api/v1/entries/missing", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"entry": nil})
	})

	mux.HandleFunc("/api/v1/chain/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"valid":    false,
			"entry_id": "entry-9",
			"reason":   "hash mismatch",
		})
	})

	mux.HandleFunc("/api/v1/reports", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"report_id": "rep-1"})
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"reports": []map[string]any{{"id": "rep-1", "category": "daily", "entry_count": 3}},
			})
		}
	})

	mux.HandleFunc("/api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"settings": map[string]any{"retention_days": 2555, "audit_access_logging": true},
			})
		case http.MethodPut:
			json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
		}
	})

	mux.HandleFunc("/api/v1/statistics", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"statistics": map[string]uint64{"total_entries": 12, "compliance_entries": 4},
		})
	})

	mux.HandleFunc("/api/v1/auditors", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})

	return httptest.NewServer(mux)
}

func testClient(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	return client.New(srv.URL, client.WithToken("test-token"))
}

func TestLogEvent(t *testing.T) {
	srv := stubAuditServer(t)
	defer srv.Close()
	c := testClient(t, srv)

	id, err := c.LogEvent(ctx, client.LogEventRequest{
		EventType:    "kyc_update",
		ResourceType: "kyc_profile",
		ResourceID:   "kyc-1",
		Action:       "update",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "entry-1" {
		t.Errorf("entry id: got %q", id)
	}
}

func TestLogEvent_unauthorized(t *testing.T) {
	srv := stubAuditServer(t)
	defer srv.Close()
	c := client.New(srv.URL) // no token

	if _, err := c.LogEvent(ctx, client.LogEventRequest{EventType: "kyc_update"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestQueryEntries_buildsParams(t *testing.T) {
	srv := stubAuditServer(t)
	defer srv.Close()
	c := testClient(t, srv)

	entries, err := c.QueryEntries(ctx, client.QueryOptions{
		Actors:         []string{"alice"},
		ComplianceOnly: true,
		Limit:          10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "entry-1" {
		t.Errorf("entries: got %+v", entries)
	}
}

func TestGetEntry(t *testing.T) {
	srv := stubAuditServer(t)
	defer srv.Close()
	c := testClient(t, srv)

	e, err := c.GetEntry(ctx, "entry-1")
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Actor != "alice" {
		t.Errorf("entry: got %+v", e)
	}

	e, err = c.GetEntry(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Errorf("missing entry: got %+v, want nil", e)
	}
}

func TestVerifyChain_reportsFailure(t *testing.T) {
	srv := stubAuditServer(t)
	defer srv.Close()
	c := testClient(t, srv)

	res, err := c.VerifyChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("expected valid=false")
	}
	if res.EntryID != "entry-9" || res.Reason != "hash mismatch" {
		t.Errorf("verify result: %+v", res)
	}
}

func TestReports(t *testing.T) {
	srv := stubAuditServer(t)
	defer srv.Close()
	c := testClient(t, srv)

	id, err := c.GenerateReport(ctx, "daily", 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if id != "rep-1" {
		t.Errorf("report id: got %q", id)
	}

	reports, err := c.ListReports(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].EntryCount != 3 {
		t.Errorf("reports: got %+v", reports)
	}
}

func TestSettingsAndStatistics(t *testing.T) {
	srv := stubAuditServer(t)
	defer srv.Close()
	c := testClient(t, srv)

	s, err := c.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.RetentionDays != 2555 {
		t.Errorf("retention days: got %d", s.RetentionDays)
	}

	if err := c.UpdateSettings(ctx, *s); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["total_entries"] != 12 {
		t.Errorf("total_entries: got %d", stats["total_entries"])
	}

	if err := c.AddAuditor(ctx, "principal:carol", "Carol"); err != nil {
		t.Fatal(err)
	}
}
