// Package audit implements the audit trail service: the single logging choke
// point in front of the ledger chain, the auditor capability registry, the
// settings store, compliance reporting, and the self-auditing of ledger
// reads.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/ledger"
)

// ErrUnauthorized is returned by mutating operations when the caller is not
// a registered auditor. Read operations never return it; they return an
// empty result instead, so an unauthorized caller cannot distinguish
// "denied" from "nothing there".
var ErrUnauthorized = errors.New("audit: unauthorized")

// Notifier receives committed compliance-relevant entries for best-effort
// real-time alerting. Implementations must not block: they are invoked after
// the append has committed and must never feed back into the ledger.
type Notifier interface {
	Notify(e *ledger.Entry)
}

// Request holds the caller-supplied fields of a log_event call.
type Request struct {
	EventType          ledger.EventType    `json:"event_type"`
	ResourceType       ledger.ResourceType `json:"resource_type"`
	ResourceID         string              `json:"resource_id"`
	Action             string              `json:"action"`
	Details            string              `json:"details"`
	Metadata           ledger.Metadata     `json:"metadata"`
	ComplianceRelevant bool                `json:"compliance_relevant"`
}

// Service owns all mutable audit trail state: the ledger store, the auditor
// registry, the settings, and the generated reports. There are no package
// globals; every operation goes through the methods below.
//
// Writes (LogEvent) are open to any caller. Reads and administration are
// gated by the auditor registry. There is deliberately no auditor-removal
// operation; revocation is an owner-level policy decision.
type Service struct {
	store    ledger.Store
	notifier Notifier
	logger   *zap.Logger

	mu          sync.RWMutex
	auditors    map[string]string // identity -> display name
	settings    Settings
	reports     map[string]*Report
	reportOrder []string // report ids in generation order
}

// NewService creates the service, seeds initializer as the first auditor,
// and appends the initialization entry to the chain.
func NewService(ctx context.Context, store ledger.Store, initializer string, logger *zap.Logger) (*Service, error) {
	if initializer == "" {
		return nil, fmt.Errorf("audit: initializer identity is required")
	}

	s := &Service{
		store:    store,
		logger:   logger,
		auditors: map[string]string{initializer: "System Administrator"},
		settings: DefaultSettings(),
		reports:  make(map[string]*Report),
	}

	if _, err := s.append(ctx, initializer, Request{
		EventType:          ledger.EventSystemConfiguration,
		ResourceType:       ledger.ResourceSystem,
		ResourceID:         "audit-trail",
		Action:             "initialization",
		Details:            "audit trail service initialized",
		ComplianceRelevant: true,
	}); err != nil {
		return nil, fmt.Errorf("log initialization: %w", err)
	}

	return s, nil
}

// SetNotifier wires the real-time alert sink. Optional.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// IsAuditor reports whether identity holds auditor capability.
func (s *Service) IsAuditor(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.auditors[identity]
	return ok
}

// LogEvent records a sensitive action on behalf of actor and returns the new
// entry's id. Open to any caller; this is the public logging entry point for
// the custody, wallet, and compliance modules.
func (s *Service) LogEvent(ctx context.Context, actor string, req Request) (string, error) {
	e, err := s.append(ctx, actor, req)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// append is the internal choke point in front of the store. Every entry —
// including the audit-access entries appended by logAccess — passes through
// here, and this function never calls back into LogEvent or logAccess, which
// is what breaks the self-logging recursion.
func (s *Service) append(ctx context.Context, actor string, req Request) (*ledger.Entry, error) {
	s.mu.RLock()
	retentionDays := s.settings.RetentionDays
	alerts := s.settings.RealTimeAlertsEnabled
	s.mu.RUnlock()

	var retention time.Duration
	if req.ComplianceRelevant {
		retention = time.Duration(retentionDays) * 24 * time.Hour
	}

	e, err := s.store.Append(ctx, ledger.Record{
		EventType:          req.EventType,
		Actor:              actor,
		ResourceType:       req.ResourceType,
		ResourceID:         req.ResourceID,
		Action:             req.Action,
		Details:            req.Details,
		Metadata:           req.Metadata,
		ComplianceRelevant: req.ComplianceRelevant,
		Retention:          retention,
	})
	if err != nil {
		return nil, err
	}

	if e.ComplianceRelevant && alerts && s.notifier != nil {
		s.notifier.Notify(e)
	}
	return e, nil
}

// logAccess appends the self-auditing entry for an authorized read. It goes
// straight to append, bypassing LogEvent, and is itself never re-logged.
func (s *Service) logAccess(ctx context.Context, actor, operation, resourceID string) {
	s.mu.RLock()
	enabled := s.settings.AuditAccessLogging
	s.mu.RUnlock()
	if !enabled {
		return
	}

	if _, err := s.append(ctx, actor, Request{
		EventType:          ledger.EventAuditAccess,
		ResourceType:       ledger.ResourceAuditLog,
		ResourceID:         resourceID,
		Action:             operation,
		Details:            "audit access via operation: " + operation,
		ComplianceRelevant: true,
	}); err != nil {
		s.logger.Warn("failed to log audit access",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}

// QueryEntries returns the entries matching f, newest first. Non-auditors
// receive an empty result, never an error. A successful authorized query
// appends exactly one audit-access entry (subject to the settings toggle).
func (s *Service) QueryEntries(ctx context.Context, caller string, f ledger.Filter) ([]*ledger.Entry, error) {
	if !s.IsAuditor(caller) {
		s.logger.Warn("unauthorized audit query attempt", zap.String("caller", caller))
		return []*ledger.Entry{}, nil
	}

	s.logAccess(ctx, caller, "query_entries", "multiple")
	return s.store.Query(ctx, f)
}

// GetEntry returns a single entry by id, or nil when the entry does not
// exist or the caller is not an auditor — the two cases are intentionally
// indistinguishable.
func (s *Service) GetEntry(ctx context.Context, caller, id string) (*ledger.Entry, error) {
	if !s.IsAuditor(caller) {
		s.logger.Warn("unauthorized audit entry access attempt", zap.String("caller", caller))
		return nil, nil
	}

	s.logAccess(ctx, caller, "get_entry", id)

	e, err := s.store.Get(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	return e, err
}

// VerifyChain replays the full chain and returns nil when history is intact.
// A *ledger.VerifyError names the first offending entry. A confirmed failure
// means the integrity guarantee is already broken and warrants a manual
// incident investigation.
func (s *Service) VerifyChain(ctx context.Context, caller string) error {
	if !s.IsAuditor(caller) {
		return ErrUnauthorized
	}

	s.logAccess(ctx, caller, "verify_chain", "chain_verification")
	return s.store.Verify(ctx)
}

// GenerateReport aggregates the compliance-relevant entries of a period into
// a report with its own, unchained hash, stores it, and logs the generation
// as a compliance-check event. Returns the report id.
func (s *Service) GenerateReport(ctx context.Context, caller string, category ReportCategory, periodStart, periodEnd int64) (string, error) {
	if !s.IsAuditor(caller) {
		return "", ErrUnauthorized
	}
	if !category.Valid() {
		return "", fmt.Errorf("audit: invalid report category %q", category)
	}
	if periodEnd < periodStart {
		return "", fmt.Errorf("audit: report period end precedes start")
	}

	s.mu.RLock()
	enabled := s.settings.ComplianceReportingEnabled
	s.mu.RUnlock()
	if !enabled {
		return "", fmt.Errorf("audit: compliance reporting is disabled")
	}

	entries, err := s.store.Query(ctx, ledger.Filter{
		Start:          periodStart,
		End:            periodEnd,
		ComplianceOnly: true,
	})
	if err != nil {
		return "", fmt.Errorf("query compliance entries: %w", err)
	}

	r := &Report{
		ID:          uuid.NewString(),
		Category:    category,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		GeneratedAt: time.Now().UnixNano(),
		GeneratedBy: caller,
		EntryCount:  len(entries),
		Summary:     reportSummary(periodStart, periodEnd, len(entries)),
	}
	r.Hash = computeReportHash(r)

	s.mu.Lock()
	s.reports[r.ID] = r
	s.reportOrder = append(s.reportOrder, r.ID)
	s.mu.Unlock()

	if _, err := s.append(ctx, caller, Request{
		EventType:          ledger.EventComplianceCheck,
		ResourceType:       ledger.ResourceComplianceReport,
		ResourceID:         r.ID,
		Action:             "generate_report",
		Details:            fmt.Sprintf("generated %s compliance report for period %d to %d", category, periodStart, periodEnd),
		ComplianceRelevant: true,
	}); err != nil {
		return "", fmt.Errorf("log report generation: %w", err)
	}

	return r.ID, nil
}

// GetReport returns a report by id, or nil for unknown ids and non-auditors.
func (s *Service) GetReport(ctx context.Context, caller, id string) (*Report, error) {
	if !s.IsAuditor(caller) {
		s.logger.Warn("unauthorized report access attempt", zap.String("caller", caller))
		return nil, nil
	}

	s.logAccess(ctx, caller, "get_report", id)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reports[id], nil
}

// ListReports returns all reports in generation order. Empty for
// non-auditors.
func (s *Service) ListReports(ctx context.Context, caller string) ([]*Report, error) {
	if !s.IsAuditor(caller) {
		s.logger.Warn("unauthorized report list attempt", zap.String("caller", caller))
		return []*Report{}, nil
	}

	s.logAccess(ctx, caller, "list_reports", "all_reports")

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Report, 0, len(s.reportOrder))
	for _, id := range s.reportOrder {
		out = append(out, s.reports[id])
	}
	return out, nil
}

// AddAuditor grants auditor capability to identity. Caller must already be
// an auditor.
func (s *Service) AddAuditor(ctx context.Context, caller, identity, name string) error {
	if !s.IsAuditor(caller) {
		return ErrUnauthorized
	}
	if identity == "" || name == "" {
		return fmt.Errorf("audit: auditor identity and name are required")
	}

	s.mu.Lock()
	s.auditors[identity] = name
	s.mu.Unlock()

	if _, err := s.append(ctx, caller, Request{
		EventType:          ledger.EventSystemConfiguration,
		ResourceType:       ledger.ResourceUser,
		ResourceID:         identity,
		Action:             "add_auditor",
		Details:            "added auditor: " + name,
		ComplianceRelevant: true,
	}); err != nil {
		return fmt.Errorf("log auditor addition: %w", err)
	}
	return nil
}

// GetSettings returns the current settings to auditors, and the safe
// all-disabled zero value to everyone else.
func (s *Service) GetSettings(caller string) Settings {
	if !s.IsAuditor(caller) {
		return Settings{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// HashVerificationEnabled reports the current verification toggle. Read by
// the periodic integrity sweep, which is internal and not caller-gated.
func (s *Service) HashVerificationEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.HashVerificationEnabled
}

// UpdateSettings replaces the settings. Caller must be an auditor.
func (s *Service) UpdateSettings(ctx context.Context, caller string, next Settings) error {
	if !s.IsAuditor(caller) {
		return ErrUnauthorized
	}
	if next.RetentionDays <= 0 {
		return fmt.Errorf("audit: retention days must be positive")
	}

	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()

	if _, err := s.append(ctx, caller, Request{
		EventType:          ledger.EventSystemConfiguration,
		ResourceType:       ledger.ResourceSystem,
		ResourceID:         "audit_settings",
		Action:             "update_settings",
		Details:            "updated audit trail settings",
		ComplianceRelevant: true,
	}); err != nil {
		return fmt.Errorf("log settings update: %w", err)
	}
	return nil
}

// Statistics returns label -> count aggregates: total entries, compliance
// entries, per-event-type counts, and report count. Empty for non-auditors.
func (s *Service) Statistics(ctx context.Context, caller string) (map[string]uint64, error) {
	if !s.IsAuditor(caller) {
		s.logger.Warn("unauthorized statistics access attempt", zap.String("caller", caller))
		return map[string]uint64{}, nil
	}

	s.logAccess(ctx, caller, "get_statistics", "statistics")

	entries, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	stats := make(map[string]uint64)
	stats["total_entries"] = uint64(len(entries))

	var compliance uint64
	for _, e := range entries {
		if e.ComplianceRelevant {
			compliance++
		}
		stats["event_type_"+string(e.EventType)]++
	}
	stats["compliance_entries"] = compliance

	s.mu.RLock()
	stats["compliance_reports"] = uint64(len(s.reports))
	s.mu.RUnlock()

	return stats, nil
}
