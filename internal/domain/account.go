// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"github.com/shopspring/decimal"
)

// AccountRecord is one raw credit-line row as delivered by the upstream
// PACS service. Every financial and temporal field is string-typed on the
// wire; the normalizer converts them exactly once at snapshot ingestion.
type AccountRecord struct {
	SrNo                   string `json:"srNo"`
	PacsProductCodeAndName string `json:"pacsProductCodeAndName"`
	CustomerNo             string `json:"customerNo"`
	PacsAccountNo          string `json:"pacsAccountNo"`
	PacsName               string `json:"pacsName"`
	LimitSanctioned        string `json:"limitSanctioned"`
	DrawingPower           string `json:"drawingPower"`
	DueDate                string `json:"dueDate"`
	OutstandingAmount      string `json:"outstandingAmount"`
	Irregularity           string `json:"irregularity"`

	MemberSrNo            string `json:"memberSrNo"`
	MemberProdName        string `json:"memberProdName"`
	MemberCustomerNo      string `json:"memberCustomerNo"`
	MemberAccountNo       string `json:"memberAccountNo"`
	MemberAccountName     string `json:"memberAccountName"`
	BrNo                  string `json:"brNo"`
	MemberLimitSanctioned string `json:"memberLimitSanctioned"`
	MemberPrevYearLimit   string `json:"memberPrevYearLimit"`
	MemberDrawingPower    string `json:"memberDrawingPower"`
	MemberDueDate         string `json:"memberDueDate"`
	MemberUnpaidPrinciple string `json:"memberUnpaidPrinciple"`
	MemberOutstanding     string `json:"memberOutstanding"`
	MemberIrregularity    string `json:"memberIrregularity"`

	MobileNo            string `json:"mobileNo"`
	AadhaarNo           string `json:"aadhaarNo"`
	DisbursementDate    string `json:"disbursementDate"`
	LastActivityDate    string `json:"lastActivityDate"`
	FullWithdrawalCount string `json:"fullWithdrawalCount"`
	AtmDistanceKm       string `json:"atmDistanceKm"`
}

// Account is the normalized, read-only form of an AccountRecord.
// Amounts are arbitrary-precision decimals, dates carry an explicit
// known/unknown flag, and counters are plain integers. Accounts are
// immutable inputs to the engine; ownership stays with the caller.
type Account struct {
	// Identifiers
	SocietyAccountNo string `json:"societyAccountNo"`
	SocietyName      string `json:"societyName"`
	CustomerNo       string `json:"customerNo"`
	AccountNo        string `json:"accountNo"`
	AccountName      string `json:"accountName"`
	BranchNo         string `json:"branchNo"`
	ProductName      string `json:"productName"`

	// Contact identifiers (correlation keys)
	MobileNo  string `json:"mobileNo,omitempty"`
	AadhaarNo string `json:"aadhaarNo,omitempty"`

	// Financials
	LimitSanctioned decimal.Decimal `json:"limitSanctioned"`
	PrevYearLimit   decimal.Decimal `json:"prevYearLimit"`
	DrawingPower    decimal.Decimal `json:"drawingPower"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	UnpaidPrincipal decimal.Decimal `json:"unpaidPrincipal"`
	Irregularity    decimal.Decimal `json:"irregularity"`

	// Society-level outstanding of the parent credit line, used by the
	// ATM-usage and high-value rules.
	LineOutstanding decimal.Decimal `json:"lineOutstanding"`

	// Dates
	DueDate          Date `json:"dueDate"`
	DisbursementDate Date `json:"disbursementDate"`
	LastActivity     Date `json:"lastActivity"`

	// HasLastActivity distinguishes an absent last-activity record from a
	// present-but-unparseable or sentinel one.
	HasLastActivity bool `json:"hasLastActivity"`

	// Behavioral counters
	FullWithdrawalCount int `json:"fullWithdrawalCount"`
	AtmDistanceKm       int `json:"atmDistanceKm"`
}

// Snapshot is one cooperative entity's account records, already filtered
// upstream to a single society. Order is the upstream delivery order and
// is significant: alert numbering follows it.
type Snapshot struct {
	SocietyID string     `json:"societyId"`
	Accounts  []*Account `json:"accounts"`
}

// SnapshotStats summarizes a snapshot for the review dashboard.
type SnapshotStats struct {
	TotalRecords       int             `json:"totalRecords"`
	TotalOutstanding   decimal.Decimal `json:"totalOutstanding"`
	AverageOutstanding decimal.Decimal `json:"averageOutstanding"`
	TotalIrregularity  decimal.Decimal `json:"totalIrregularity"`
}

// Stats computes summary statistics over the snapshot.
func (s *Snapshot) Stats() SnapshotStats {
	stats := SnapshotStats{TotalRecords: len(s.Accounts)}
	for _, a := range s.Accounts {
		stats.TotalOutstanding = stats.TotalOutstanding.Add(a.Outstanding)
		stats.TotalIrregularity = stats.TotalIrregularity.Add(a.Irregularity)
	}
	if len(s.Accounts) > 0 {
		stats.AverageOutstanding = stats.TotalOutstanding.DivRound(decimal.NewFromInt(int64(len(s.Accounts))), 2)
	}
	return stats
}
