package audit

// Settings holds the runtime configuration toggles of the audit trail.
// Initialised with defaults at service start and mutated only by authorized
// auditors. The zero value is the safe all-disabled shape returned to
// unauthorized callers.
type Settings struct {
	RetentionDays              int  `json:"retention_days"`
	AutoArchiveEnabled         bool `json:"auto_archive_enabled"`
	ComplianceReportingEnabled bool `json:"compliance_reporting_enabled"`
	RealTimeAlertsEnabled      bool `json:"real_time_alerts_enabled"`
	HashVerificationEnabled    bool `json:"hash_verification_enabled"`
	DigitalSignaturesEnabled   bool `json:"digital_signatures_enabled"`
	AuditAccessLogging         bool `json:"audit_access_logging"`
}

// DefaultSettings returns the initial configuration: a seven-year retention
// horizon with everything except digital signatures enabled.
func DefaultSettings() Settings {
	return Settings{
		RetentionDays:              2555, // 7 years
		AutoArchiveEnabled:         true,
		ComplianceReportingEnabled: true,
		RealTimeAlertsEnabled:      true,
		HashVerificationEnabled:    true,
		DigitalSignaturesEnabled:   false,
		AuditAccessLogging:         true,
	}
}
