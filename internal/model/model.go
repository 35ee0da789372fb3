// Package model defines the data model shared across the enforcement
// pipeline: principals, alerts, bans, and the admin audit log.
package model

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"
	"time"
)

// Role is a principal's closed role enumeration.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
	RoleOrg   Role = "ORG"
)

// Principal is an identifiable account in the identity directory. The core
// only reads it and flips IsActive; the directory itself is external.
type Principal struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Kind is a Finding/Alert's closed attack-family enumeration. New kinds are
// additive only.
type Kind string

const (
	KindXSS                Kind = "XSS"
	KindSQLInjection       Kind = "SQL_INJECTION"
	KindCommandInjection   Kind = "COMMAND_INJECTION"
	KindBruteForce         Kind = "BRUTE_FORCE"
	KindUnauthorizedAccess Kind = "UNAUTHORIZED_ACCESS"
	KindRateLimitExceeded  Kind = "RATE_LIMIT_EXCEEDED"
	KindAPIAbuse           Kind = "API_ABUSE"
	KindPenTestTool        Kind = "PEN_TEST_TOOL"
	KindForwarderOverflow  Kind = "FORWARDER_OVERFLOW"
	KindInternal           Kind = "INTERNAL"

	// Additive kinds beyond spec's eight-family table (see SPEC_FULL.md §4).
	KindSSRF             Kind = "SSRF"
	KindXXE              Kind = "XXE"
	KindHeaderInjection  Kind = "HEADER_INJECTION"
	KindAuthBypass       Kind = "AUTH_BYPASS"
	KindEncodingEvasion  Kind = "ENCODING_EVASION"
)

// ScoreBase returns the base risk score for a kind, per the classifier's
// scoring table. Kinds with no fixed base (e.g. emitted out-of-band) score 0
// here; their callers supply score_base directly via Finding.
func (k Kind) ScoreBase() int {
	switch k {
	case KindSQLInjection:
		return 80
	case KindCommandInjection:
		return 90
	case KindXSS:
		return 60
	case KindBruteForce:
		return 50
	case KindUnauthorizedAccess:
		return 70
	case KindRateLimitExceeded:
		return 40
	case KindAPIAbuse:
		return 40
	case KindPenTestTool:
		return 50
	case KindSSRF:
		return 85
	case KindXXE:
		return 85
	case KindHeaderInjection:
		return 65
	case KindAuthBypass:
		return 75
	case KindEncodingEvasion:
		return 55
	default:
		return 0
	}
}

// Severity is an Alert/Finding's closed severity enumeration.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Multiplier returns the risk-score multiplier for this severity.
func (s Severity) Multiplier() float64 {
	switch s {
	case SeverityLow:
		return 0.5
	case SeverityMedium:
		return 0.75
	case SeverityHigh:
		return 1.0
	case SeverityCritical:
		return 1.25
	default:
		return 0.5
	}
}

// Status is an Alert's closed lifecycle status. Once it leaves StatusNew it
// is a monotonic sink.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusReviewed      Status = "REVIEWED"
	StatusIgnored       Status = "IGNORED"
	StatusFalsePositive Status = "FALSE_POSITIVE"
	StatusBanned        Status = "BANNED"
)

// Terminal reports whether s is a monotonic sink state.
func (s Status) Terminal() bool {
	return s != StatusNew
}

// Finding is the Classifier's pure output: a candidate alert before
// persistence, dedupe, or attribution.
type Finding struct {
	Kind      Kind
	Severity  Severity
	Signature string
	Fragment  string
	ScoreBase int
}

// RiskScore computes round(score_base * severity_multiplier + payload_bonus)
// clamped to [0,100], per spec §4.1.
func (f Finding) RiskScore() int {
	bonus := len(f.Fragment) / 32
	if bonus > 20 {
		bonus = 20
	}
	score := int(float64(f.ScoreBase)*f.Severity.Multiplier() + float64(bonus) + 0.5)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Alert is a persisted record of one classified offense event.
type Alert struct {
	ID             int64             `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	PrincipalID    *int64            `json:"principal_id,omitempty"`
	RemoteAddress  string            `json:"remote_address,omitempty"`
	Route          string            `json:"route"`
	Method         string            `json:"method"`
	Kind           Kind              `json:"kind"`
	Severity       Severity          `json:"severity"`
	RiskScore      int               `json:"risk_score"`
	Signature      string            `json:"signature"`
	Payload        string            `json:"payload"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Status         Status            `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SubjectKind is a Ban's closed subject enumeration.
type SubjectKind string

const (
	SubjectPrincipal SubjectKind = "PRINCIPAL"
	SubjectAddress   SubjectKind = "ADDRESS"
)

// Ban is an explicit row authorizing rejection of its subject.
type Ban struct {
	ID          int64       `json:"id"`
	SubjectKind SubjectKind `json:"subject_kind"`
	Subject     string      `json:"subject"`
	Reason      string      `json:"reason"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	Active      bool        `json:"active"`
}

// AdminActionKind is the closed enumeration of audited admin/automatic
// actions.
type AdminActionKind string

const (
	ActionAutoSuspend AdminActionKind = "AUTO_SUSPEND"
	ActionAutoBan     AdminActionKind = "AUTO_BAN"
	ActionAutoIPBan   AdminActionKind = "AUTO_IP_BAN"
	ActionManualBan   AdminActionKind = "MANUAL_BAN"
	ActionManualUnban AdminActionKind = "MANUAL_UNBAN"
	ActionStatusEdit  AdminActionKind = "ALERT_STATUS_EDIT"
	ActionBulkClear   AdminActionKind = "ALERT_BULK_CLEAR"
)

// AdminAction is an append-only audit log entry for every state-changing
// admin call and every automatic penalty transition.
type AdminAction struct {
	ID               int64           `json:"id"`
	ActorPrincipalID *int64          `json:"actor_principal_id,omitempty"`
	Kind             AdminActionKind `json:"kind"`
	Target           string          `json:"target"`
	CreatedAt        time.Time       `json:"created_at"`
	Note             string          `json:"note,omitempty"`
}

// ForwarderConfig describes one configured webhook sink.
type ForwarderConfig struct {
	ID          string    `json:"id"`
	Endpoint    string    `json:"endpoint"`
	Secret      string    `json:"-"`
	EventKinds  []Kind    `json:"event_kinds"`
	MinSeverity Severity  `json:"min_severity"`
	Enabled     bool      `json:"enabled"`
	Retries     int       `json:"retries"`
	TimeoutSec  int       `json:"timeout_sec"`
	CreatedAt   time.Time `json:"created_at"`
}

// Matches reports whether alert a should be delivered to this sink.
func (fc ForwarderConfig) Matches(a Alert) bool {
	if !fc.Enabled {
		return false
	}
	if !severityAtLeast(a.Severity, fc.MinSeverity) {
		return false
	}
	if len(fc.EventKinds) == 0 {
		return true
	}
	for _, k := range fc.EventKinds {
		if k == a.Kind {
			return true
		}
	}
	return false
}

func severityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

func severityAtLeast(have, want Severity) bool {
	return severityRank(have) >= severityRank(want)
}

// WebRequest is one row of the operator-introspection request ledger —
// recorded independent of classification outcome.
type WebRequest struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Status     int       `json:"status"`
	LatencyMs  float64   `json:"latency_ms"`
	RemoteAddr string    `json:"remote_address"`
}

// ComputeSignature derives a short, stable hash of kind and the normalized
// offending fragment, used for dedupe (spec §4.2). The Classifier computes
// it on the Finding and the Alert Store persists and dedupes on that value
// as-is, so the two never disagree.
func ComputeSignature(kind Kind, fragment string) string {
	normalized := strings.ToLower(strings.TrimSpace(fragment))
	sum := sha256.Sum256([]byte(string(kind) + "|" + normalized))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:16])
}

// AlertFilter is the shared filter set for listing, deleting, and exporting
// alerts.
type AlertFilter struct {
	Severity      *Severity
	Kind          *Kind
	Status        *Status
	PrincipalID   *int64
	RemoteAddress *string
	After         *time.Time
	Before        *time.Time
	Skip          int
	Limit         int
	// CursorID restricts results to ids below this value (exclusive),
	// implementing export's keyset pagination beyond the 100,000-row page
	// cap (spec §4.2) without an expensive large OFFSET.
	CursorID *int64
}
