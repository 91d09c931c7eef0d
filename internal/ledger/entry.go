package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType classifies the sensitive action an entry records. The set is
// closed: collaborators extend it only by redeploying, never at runtime.
type EventType string

const (
	EventAccountCreation      EventType = "account_creation"
	EventAccountModification  EventType = "account_modification"
	EventAccountClosure       EventType = "account_closure"
	EventTransactionInitiated EventType = "transaction_initiated"
	EventTransactionApproved  EventType = "transaction_approved"
	EventTransactionExecuted  EventType = "transaction_executed"
	EventTransactionRejected  EventType = "transaction_rejected"
	EventComplianceCheck      EventType = "compliance_check"
	EventKycUpdate            EventType = "kyc_update"
	EventRiskAssessment       EventType = "risk_assessment"
	EventEmergencyAction      EventType = "emergency_action"
	EventSystemConfiguration  EventType = "system_configuration"
	EventUserAuthentication   EventType = "user_authentication"
	EventAccessGranted        EventType = "access_granted"
	EventAccessDenied         EventType = "access_denied"
	EventDataExport           EventType = "data_export"
	EventDataModification     EventType = "data_modification"
	EventPolicyUpdate         EventType = "policy_update"
	EventAuditAccess          EventType = "audit_access"
)

var eventTypes = map[EventType]bool{
	EventAccountCreation: true, EventAccountModification: true,
	EventAccountClosure: true, EventTransactionInitiated: true,
	EventTransactionApproved: true, EventTransactionExecuted: true,
	EventTransactionRejected: true, EventComplianceCheck: true,
	EventKycUpdate: true, EventRiskAssessment: true,
	EventEmergencyAction: true, EventSystemConfiguration: true,
	EventUserAuthentication: true, EventAccessGranted: true,
	EventAccessDenied: true, EventDataExport: true,
	EventDataModification: true, EventPolicyUpdate: true,
	EventAuditAccess: true,
}

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool { return eventTypes[t] }

// ResourceType classifies the object an event concerns.
type ResourceType string

const (
	ResourceCustodyAccount   ResourceType = "custody_account"
	ResourceMultisigWallet   ResourceType = "multisig_wallet"
	ResourceTransaction      ResourceType = "transaction"
	ResourceKycProfile       ResourceType = "kyc_profile"
	ResourceComplianceReport ResourceType = "compliance_report"
	ResourceUser             ResourceType = "user"
	ResourceSystem           ResourceType = "system"
	ResourceDocument         ResourceType = "document"
	ResourcePolicy           ResourceType = "policy"
	ResourceAuditLog         ResourceType = "audit_log"
)

var resourceTypes = map[ResourceType]bool{
	ResourceCustodyAccount: true, ResourceMultisigWallet: true,
	ResourceTransaction: true, ResourceKycProfile: true,
	ResourceComplianceReport: true, ResourceUser: true,
	ResourceSystem: true, ResourceDocument: true,
	ResourcePolicy: true, ResourceAuditLog: true,
}

// Valid reports whether t is a member of the closed resource type set.
func (t ResourceType) Valid() bool { return resourceTypes[t] }

// Metadata carries optional structured context for an entry. It is stored
// opaquely and excluded from the entry hash.
type Metadata struct {
	IPAddress   string            `json:"ip_address,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Service     string            `json:"service,omitempty"`
	Method      string            `json:"method,omitempty"`
	BeforeState string            `json:"before_state,omitempty"`
	AfterState  string            `json:"after_state,omitempty"`
	ErrorCode   string            `json:"error_code,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
}

// Entry is a single immutable record in the audit chain.
type Entry struct {
	ID                 string       `json:"id"`
	Timestamp          int64        `json:"timestamp"` // Unix nanoseconds
	EventType          EventType    `json:"event_type"`
	Actor              string       `json:"actor"`
	ResourceType       ResourceType `json:"resource_type"`
	ResourceID         string       `json:"resource_id"`
	Action             string       `json:"action"`
	Details            string       `json:"details"`
	Metadata           Metadata     `json:"metadata"`
	Hash               string       `json:"hash"`
	PreviousHash       string       `json:"previous_hash,omitempty"` // empty only for the chain root
	ComplianceRelevant bool         `json:"compliance_relevant"`
	RetentionUntil     int64        `json:"retention_until,omitempty"` // Unix nanoseconds, 0 = none
}

// Record holds the caller-supplied fields of a new entry. The store fills in
// the id, timestamp, hashes, and retention expiry on Append.
type Record struct {
	EventType          EventType
	Actor              string
	ResourceType       ResourceType
	ResourceID         string
	Action             string
	Details            string
	Metadata           Metadata
	ComplianceRelevant bool

	// Retention is the retention horizon applied when ComplianceRelevant
	// is set; RetentionUntil becomes timestamp + Retention.
	Retention time.Duration
}

// Validate rejects records that would produce a malformed entry.
func (r Record) Validate() error {
	if !r.EventType.Valid() {
		return fmt.Errorf("ledger: invalid event type %q", r.EventType)
	}
	if !r.ResourceType.Valid() {
		return fmt.Errorf("ledger: invalid resource type %q", r.ResourceType)
	}
	if r.Actor == "" {
		return fmt.Errorf("ledger: actor is required")
	}
	if r.ResourceID == "" {
		return fmt.Errorf("ledger: resource id is required")
	}
	if r.Action == "" {
		return fmt.Errorf("ledger: action is required")
	}
	return nil
}

// newEntryID returns a fresh entry id. Ids are random UUIDs; chain
// verification recomputes hashes from stored fields, so id randomness never
// affects reproducibility.
func newEntryID() string { return uuid.NewString() }

// ComputeHash returns the canonical SHA-256 digest of an entry: its identity
// fields in fixed order, the timestamp as 8 big-endian bytes, and the
// predecessor hash last (omitted for the chain root). Metadata and the
// compliance fields are deliberately outside the digest; reordering or
// editing any hashed field changes the result.
func ComputeHash(e *Entry) string {
	h := sha256.New()
	h.Write([]byte(e.ID))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.Timestamp))
	h.Write(ts[:])
	h.Write([]byte(e.EventType))
	h.Write([]byte(e.Actor))
	h.Write([]byte(e.ResourceType))
	h.Write([]byte(e.ResourceID))
	h.Write([]byte(e.Action))
	h.Write([]byte(e.Details))
	if e.PreviousHash != "" {
		h.Write([]byte(e.PreviousHash))
	}
	return hex.EncodeToString(h.Sum(nil))
}
