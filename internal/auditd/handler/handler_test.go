package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/audit"
	"github.com/custodia-io/audit-trail/internal/auditd/handler"
	"github.com/custodia-io/audit-trail/internal/ledger"
)

var testSecret = []byte("handler-test-secret")

const admin = "principal:admin"

func setupRouter(t *testing.T) (*gin.Engine, *audit.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	svc, err := audit.NewService(context.Background(), store, admin, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(handler.Identity(testSecret))
	handler.NewAuditHandler(svc, zap.NewNop()).Register(v1)
	handler.NewReportHandler(svc, zap.NewNop()).Register(v1)
	handler.NewAdminHandler(svc, zap.NewNop()).Register(v1)
	return r, svc
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	tok, err := handler.MintToken(testSecret, subject, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok
}

func do(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestLogEvent_401_withoutToken(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/events", "", map[string]any{
		"event_type":    "kyc_update",
		"resource_type": "kyc_profile",
		"resource_id":   "kyc-1",
		"action":        "update",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLogEvent_401_expiredToken(t *testing.T) {
	router, _ := setupRouter(t)

	tok, err := handler.MintToken(testSecret, admin, -time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	w := do(t, router, http.MethodPost, "/api/v1/events", "Bearer "+tok, map[string]any{
		"event_type":    "kyc_update",
		"resource_type": "kyc_profile",
		"resource_id":   "kyc-1",
		"action":        "update",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLogEvent_201(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/events", bearer(t, "principal:teller"), map[string]any{
		"event_type":          "transaction_executed",
		"resource_type":       "transaction",
		"resource_id":         "tx-42",
		"action":              "execute",
		"details":             "wire transfer settled",
		"compliance_relevant": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["entry_id"] == "" || resp["entry_id"] == nil {
		t.Error("missing entry_id")
	}
}

func TestLogEvent_400_invalidEventType(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/events", bearer(t, admin), map[string]any{
		"event_type":    "made_up",
		"resource_type": "transaction",
		"resource_id":   "tx-42",
		"action":        "execute",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestQueryEntries_auditorSeesEntries(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/entries", bearer(t, admin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	entries := resp["entries"].([]any)
	if len(entries) == 0 {
		t.Error("auditor query returned no entries, expected at least the initialization entry")
	}
}

func TestQueryEntries_nonAuditorGets200Empty(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/entries", bearer(t, "principal:outsider"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("denial must look like an empty result: expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	entries := resp["entries"].([]any)
	if len(entries) != 0 {
		t.Errorf("non-auditor received %d entries", len(entries))
	}
}

func TestQueryEntries_400_badFilter(t *testing.T) {
	router, _ := setupRouter(t)

	for _, path := range []string{
		"/api/v1/entries?event_type=bogus",
		"/api/v1/entries?start=notanumber",
		"/api/v1/entries?offset=-1",
	} {
		w := do(t, router, http.MethodGet, path, bearer(t, admin), nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestGetEntry_nullForUnknownAndDenied(t *testing.T) {
	router, _ := setupRouter(t)

	for _, caller := range []string{admin, "principal:outsider"} {
		w := do(t, router, http.MethodGet, "/api/v1/entries/no-such-id", bearer(t, caller), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("caller %s: expected 200, got %d", caller, w.Code)
		}
		resp := decode(t, w)
		if resp["entry"] != nil {
			t.Errorf("caller %s: expected null entry, got %v", caller, resp["entry"])
		}
	}
}

func TestVerifyChain_statusCodes(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/chain/verify", bearer(t, admin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode(t, w); resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp["valid"])
	}

	w = do(t, router, http.MethodGet, "/api/v1/chain/verify", bearer(t, "principal:outsider"), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-auditor verify: expected 403, got %d", w.Code)
	}
}

func TestReports_lifecycle(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/reports", bearer(t, admin), map[string]any{
		"category":     "on_demand",
		"period_start": 0,
		"period_end":   time.Now().UnixNano(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id := decode(t, w)["report_id"].(string)

	w = do(t, router, http.MethodGet, "/api/v1/reports/"+id, bearer(t, admin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	report := decode(t, w)["report"].(map[string]any)
	if report["id"] != id {
		t.Errorf("report id: got %v", report["id"])
	}
	if report["entry_count"].(float64) < 1 {
		t.Error("report covers no entries, expected at least the initialization entry")
	}

	// Non-auditor generation is a hard denial, unlike reads.
	w = do(t, router, http.MethodPost, "/api/v1/reports", bearer(t, "principal:outsider"), map[string]any{
		"category":     "daily",
		"period_start": 0,
		"period_end":   1,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("non-auditor generate: expected 403, got %d", w.Code)
	}
}

func TestAddAuditor_andSettings(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/auditors", bearer(t, admin), map[string]any{
		"identity": "principal:carol",
		"name":     "Carol",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// The new auditor sees the real settings.
	w = do(t, router, http.MethodGet, "/api/v1/settings", bearer(t, "principal:carol"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	settings := decode(t, w)["settings"].(map[string]any)
	if settings["retention_days"].(float64) != 2555 {
		t.Errorf("retention_days: got %v", settings["retention_days"])
	}

	// Non-auditors see the zero settings with 200.
	w = do(t, router, http.MethodGet, "/api/v1/settings", bearer(t, "principal:outsider"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	settings = decode(t, w)["settings"].(map[string]any)
	if settings["retention_days"].(float64) != 0 {
		t.Errorf("non-auditor retention_days: got %v", settings["retention_days"])
	}

	w = do(t, router, http.MethodPut, "/api/v1/settings", bearer(t, "principal:outsider"), audit.DefaultSettings())
	if w.Code != http.StatusForbidden {
		t.Errorf("non-auditor settings update: expected 403, got %d", w.Code)
	}
}

func TestStatistics_200(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/statistics", bearer(t, admin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	stats := decode(t, w)["statistics"].(map[string]any)
	if stats["total_entries"].(float64) < 1 {
		t.Error("total_entries missing")
	}
}
