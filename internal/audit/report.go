package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ReportCategory is the cadence or origin of a compliance report.
type ReportCategory string

const (
	ReportDaily      ReportCategory = "daily"
	ReportWeekly     ReportCategory = "weekly"
	ReportMonthly    ReportCategory = "monthly"
	ReportQuarterly  ReportCategory = "quarterly"
	ReportAnnual     ReportCategory = "annual"
	ReportOnDemand   ReportCategory = "on_demand"
	ReportRegulatory ReportCategory = "regulatory"
	ReportInternal   ReportCategory = "internal"
)

var reportCategories = map[ReportCategory]bool{
	ReportDaily: true, ReportWeekly: true, ReportMonthly: true,
	ReportQuarterly: true, ReportAnnual: true, ReportOnDemand: true,
	ReportRegulatory: true, ReportInternal: true,
}

// Valid reports whether c is a member of the closed category set.
func (c ReportCategory) Valid() bool { return reportCategories[c] }

// Report summarises the compliance-relevant entries of a period. Its Hash is
// an independent digest over the report object itself — it is deliberately
// not linked into the main entry chain; it detects tampering of the report,
// not membership in ledger history.
type Report struct {
	ID          string         `json:"id"`
	Category    ReportCategory `json:"category"`
	PeriodStart int64          `json:"period_start"` // Unix nanoseconds
	PeriodEnd   int64          `json:"period_end"`
	GeneratedAt int64          `json:"generated_at"`
	GeneratedBy string         `json:"generated_by"`
	EntryCount  int            `json:"entry_count"`
	Summary     string         `json:"summary"`
	Hash        string         `json:"hash"`
	Signature   string         `json:"signature,omitempty"` // reserved for digital signing
}

// computeReportHash digests the report's identity, generation time, summary,
// and entry count. Recomputing it over a stored report detects any edit.
func computeReportHash(r *Report) string {
	h := sha256.New()
	h.Write([]byte(r.ID))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(r.GeneratedAt))
	h.Write(ts[:])
	h.Write([]byte(r.Summary))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(r.EntryCount))
	h.Write(n[:])
	return hex.EncodeToString(h.Sum(nil))
}

func reportSummary(start, end int64, count int) string {
	return fmt.Sprintf(
		"Compliance report covering period %d to %d with %d relevant entries",
		start, end, count,
	)
}
