package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AlertType identifies the detection rule that raised an alert.
type AlertType string

// The fixed rule catalog, in declaration order. The order is significant:
// alert sequence numbers follow it.
const (
	AlertRepaymentDefault   AlertType = "REPAYMENT_DEFAULT_NEW_CREDIT"
	AlertRepetitiveKindLoan AlertType = "REPETITIVE_KIND_LOAN"
	AlertUnmarkedOverdue    AlertType = "UNMARKED_OVERDUE"
	AlertStaffBeneficiary   AlertType = "STAFF_BENEFICIARY"
	AlertLimitSurge         AlertType = "YOY_LIMIT_SURGE"
	AlertWeekendDisbursal   AlertType = "WEEKEND_DISBURSEMENT"
	AlertNoLinkedActivity   AlertType = "NO_LINKED_ACTIVITY"
	AlertDistantATMUse      AlertType = "DISTANT_HIGH_VALUE_ATM"
	AlertFrequentWithdrawal AlertType = "FREQUENT_FULL_WITHDRAWAL"
	AlertDormantReactivated AlertType = "DORMANT_THEN_ACTIVE"
	AlertHighValueDeposit   AlertType = "HIGH_VALUE_DEPOSIT"
	AlertSharedMobile       AlertType = "SHARED_MOBILE"
	AlertSharedAadhaar      AlertType = "SHARED_AADHAAR"
)

// AlertStatus is the review state of an alert.
type AlertStatus string

const (
	// StatusPending is the initial state of every raised alert.
	StatusPending AlertStatus = "PENDING"

	// StatusResolved is terminal; a resolved alert is never reopened.
	StatusResolved AlertStatus = "RESOLVED"
)

// Alert is one unit of review work produced by an engine run.
// Seq is unique and strictly increasing within a run but reassigned on
// every run; Fingerprint is the stable identity used to reconcile
// resolutions across runs.
type Alert struct {
	Seq         int       `json:"seq"`
	Type        AlertType `json:"type"`
	Description string    `json:"description"`

	// AccountNo references the triggering account by identifier, not by
	// pointer: the snapshot may be discarded after the run.
	AccountNo   string `json:"accountNo"`
	AccountName string `json:"accountName,omitempty"`

	Fingerprint string `json:"fingerprint"`

	Status     AlertStatus `json:"status"`
	Notes      string      `json:"notes,omitempty"`
	ResolvedBy string      `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time  `json:"resolvedAt,omitempty"`
}

// AlertFingerprint derives the cross-run identity of an alert from the
// triple that is stable under re-evaluation of an unchanged snapshot.
func AlertFingerprint(t AlertType, accountNo, description string) string {
	h := sha256.New()
	h.Write([]byte(t))
	h.Write([]byte{0})
	h.Write([]byte(accountNo))
	h.Write([]byte{0})
	h.Write([]byte(description))
	return hex.EncodeToString(h.Sum(nil))
}

// Resolution records a review decision, keyed by alert fingerprint so it
// survives re-runs that renumber alerts.
type Resolution struct {
	Fingerprint string    `json:"fingerprint"`
	Notes       string    `json:"notes"`
	ResolvedBy  string    `json:"resolvedBy"`
	ResolvedAt  time.Time `json:"resolvedAt"`
}

// Run is the complete result of evaluating one snapshot.
type Run struct {
	ID        string    `json:"id"`
	SocietyID string    `json:"societyId"`
	Timestamp time.Time `json:"timestamp"`

	Alerts []*Alert      `json:"alerts"`
	Stats  SnapshotStats `json:"stats"`

	Metadata RunMetadata `json:"metadata"`
}

// RunMetadata contains processing information.
type RunMetadata struct {
	TraceID        string `json:"traceId"`
	AccountCount   int    `json:"accountCount"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion"`
}
