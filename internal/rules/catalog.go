package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cooperative-finance/kestrel/internal/correlate"
	"github.com/cooperative-finance/kestrel/internal/domain"
	"github.com/cooperative-finance/kestrel/internal/normalize"
)

// Detection thresholds. Each is a named constant so the trigger
// conditions stay auditable.
const (
	// atmDistanceKmThreshold flags ATM usage far from the home branch.
	atmDistanceKmThreshold = 50

	// atmOutstandingThreshold is the outstanding floor for the distant
	// ATM rule, in whole currency units.
	atmOutstandingThreshold = 20000

	// fullWithdrawalThreshold is the count above which full
	// withdrawals are considered frequent.
	fullWithdrawalThreshold = 2

	// dormancyMonths is the inactivity span after which renewed
	// repayment obligations look suspicious.
	dormancyMonths = 6

	// highValueThreshold flags unusually large outstanding balances,
	// in whole currency units.
	highValueThreshold = 50000

	// sharedMobileMinGroup is the group size at which a shared mobile
	// number becomes an alert for every member.
	sharedMobileMinGroup = 5

	// sharedAadhaarMinGroup is the group size at which a shared
	// Aadhaar number becomes an alert for every member.
	sharedAadhaarMinGroup = 2

	// kindGroupMin is the number of in-kind loans under one customer
	// that counts as repetitive.
	kindGroupMin = 2
)

// limitSurgeFactor is the year-over-year sanctioned-limit growth above
// which a surge alert fires (15%).
var limitSurgeFactor = decimal.RequireFromString("1.15")

// Draft is an unnumbered candidate alert produced by one rule
// invocation. Drafts never leave the engine.
type Draft struct {
	Type        domain.AlertType
	Description string
	Account     *domain.Account
}

// Rule is one member of the fixed detection catalog. Eval is a pure
// function of the snapshot and index; rules never depend on each
// other's output.
type Rule struct {
	Type domain.AlertType
	Eval func(snap *domain.Snapshot, idx *correlate.Index, now time.Time) []Draft
}

// Catalog returns the fixed rule set in declaration order. The order is
// load-bearing: alert sequence numbers follow it.
func Catalog() []Rule {
	return []Rule{
		{domain.AlertRepaymentDefault, repaymentDefault},
		{domain.AlertRepetitiveKindLoan, repetitiveKindLoan},
		{domain.AlertUnmarkedOverdue, unmarkedOverdue},
		{domain.AlertStaffBeneficiary, staffBeneficiary},
		{domain.AlertLimitSurge, limitSurge},
		{domain.AlertWeekendDisbursal, weekendDisbursal},
		{domain.AlertNoLinkedActivity, noLinkedActivity},
		{domain.AlertDistantATMUse, distantATMUse},
		{domain.AlertFrequentWithdrawal, frequentWithdrawal},
		{domain.AlertDormantReactivated, dormantReactivated},
		{domain.AlertHighValueDeposit, highValueDeposit},
		{domain.AlertSharedMobile, sharedMobile},
		{domain.AlertSharedAadhaar, sharedAadhaar},
	}
}

// repaymentDefault flags accounts carrying both an outstanding balance
// and unpaid principal, meaning fresh credit was drawn while repayment
// had already defaulted.
func repaymentDefault(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if a.Outstanding.IsPositive() && a.UnpaidPrincipal.IsPositive() {
			drafts = append(drafts, Draft{
				Type: domain.AlertRepaymentDefault,
				Description: fmt.Sprintf("account %s has outstanding %s with unpaid principal %s",
					a.AccountNo, a.Outstanding, a.UnpaidPrincipal),
				Account: a,
			})
		}
	}
	return drafts
}

// repetitiveKindLoan flags every account in a customer group holding
// two or more in-kind loans.
func repetitiveKindLoan(snap *domain.Snapshot, idx *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if !strings.Contains(a.ProductName, "KIND") {
			continue
		}
		group := kindLoans(idx.ByCustomer(a.CustomerNo))
		if len(group) < kindGroupMin {
			continue
		}
		drafts = append(drafts, Draft{
			Type: domain.AlertRepetitiveKindLoan,
			Description: fmt.Sprintf("customer %s holds %d in-kind loans including account %s",
				a.CustomerNo, len(group), a.AccountNo),
			Account: a,
		})
	}
	return drafts
}

func kindLoans(group []*domain.Account) []*domain.Account {
	var kind []*domain.Account
	for _, a := range group {
		if strings.Contains(a.ProductName, "KIND") {
			kind = append(kind, a)
		}
	}
	return kind
}

// unmarkedOverdue flags overdue accounts whose irregularity amount is
// still zero, meaning the NPA marker was never set.
func unmarkedOverdue(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if a.Outstanding.IsPositive() && a.Irregularity.IsZero() {
			drafts = append(drafts, Draft{
				Type: domain.AlertUnmarkedOverdue,
				Description: fmt.Sprintf("account %s has outstanding %s but zero irregularity",
					a.AccountNo, a.Outstanding),
				Account: a,
			})
		}
	}
	return drafts
}

// staffBeneficiary flags accounts whose holder name contains "STAFF".
// A substring heuristic, not an identity check.
func staffBeneficiary(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if strings.Contains(strings.ToUpper(a.AccountName), "STAFF") {
			drafts = append(drafts, Draft{
				Type:        domain.AlertStaffBeneficiary,
				Description: fmt.Sprintf("account %s holder %q appears to be staff", a.AccountNo, a.AccountName),
				Account:     a,
			})
		}
	}
	return drafts
}

// limitSurge flags sanctioned limits that grew more than 15% year over
// year.
func limitSurge(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if !a.PrevYearLimit.IsPositive() {
			continue
		}
		if a.LimitSanctioned.GreaterThan(a.PrevYearLimit.Mul(limitSurgeFactor)) {
			drafts = append(drafts, Draft{
				Type: domain.AlertLimitSurge,
				Description: fmt.Sprintf("account %s limit surged from %s to %s year over year",
					a.AccountNo, a.PrevYearLimit, a.LimitSanctioned),
				Account: a,
			})
		}
	}
	return drafts
}

// weekendDisbursal flags disbursements dated on a Saturday or Sunday.
// Holidays are not modeled.
func weekendDisbursal(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if normalize.IsWeekend(a.DisbursementDate) {
			drafts = append(drafts, Draft{
				Type: domain.AlertWeekendDisbursal,
				Description: fmt.Sprintf("account %s disbursed on a weekend (%s)",
					a.AccountNo, a.DisbursementDate),
				Account: a,
			})
		}
	}
	return drafts
}

// noLinkedActivity flags active KCC accounts with no last-activity
// record at all.
func noLinkedActivity(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if strings.Contains(a.ProductName, "KCC") && a.Outstanding.IsPositive() && !a.HasLastActivity {
			drafts = append(drafts, Draft{
				Type: domain.AlertNoLinkedActivity,
				Description: fmt.Sprintf("KCC account %s has outstanding %s with no recorded activity",
					a.AccountNo, a.Outstanding),
				Account: a,
			})
		}
	}
	return drafts
}

// distantATMUse flags high-balance lines withdrawn from far-away ATMs.
func distantATMUse(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	threshold := decimal.NewFromInt(atmOutstandingThreshold)
	var drafts []Draft
	for _, a := range snap.Accounts {
		if a.AtmDistanceKm > atmDistanceKmThreshold && a.LineOutstanding.GreaterThan(threshold) {
			drafts = append(drafts, Draft{
				Type: domain.AlertDistantATMUse,
				Description: fmt.Sprintf("account %s used an ATM %d km away with line outstanding %s",
					a.AccountNo, a.AtmDistanceKm, a.LineOutstanding),
				Account: a,
			})
		}
	}
	return drafts
}

// frequentWithdrawal flags accounts fully drained more than twice.
func frequentWithdrawal(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if a.FullWithdrawalCount > fullWithdrawalThreshold {
			drafts = append(drafts, Draft{
				Type: domain.AlertFrequentWithdrawal,
				Description: fmt.Sprintf("account %s fully withdrawn %d times",
					a.AccountNo, a.FullWithdrawalCount),
				Account: a,
			})
		}
	}
	return drafts
}

// dormantReactivated flags accounts inactive for half a year that now
// carry an outstanding balance.
func dormantReactivated(snap *domain.Snapshot, _ *correlate.Index, now time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if !a.LastActivity.Known() {
			continue
		}
		if normalize.MonthsSince(now, a.LastActivity) >= dormancyMonths && a.Outstanding.IsPositive() {
			drafts = append(drafts, Draft{
				Type: domain.AlertDormantReactivated,
				Description: fmt.Sprintf("account %s dormant since %s now carries outstanding %s",
					a.AccountNo, a.LastActivity, a.Outstanding),
				Account: a,
			})
		}
	}
	return drafts
}

// highValueDeposit flags unusually large outstanding balances. The
// upstream feed has no separate deposit field, so outstanding is the
// proxy.
func highValueDeposit(snap *domain.Snapshot, _ *correlate.Index, _ time.Time) []Draft {
	threshold := decimal.NewFromInt(highValueThreshold)
	var drafts []Draft
	for _, a := range snap.Accounts {
		if a.LineOutstanding.GreaterThan(threshold) {
			drafts = append(drafts, Draft{
				Type: domain.AlertHighValueDeposit,
				Description: fmt.Sprintf("account %s carries a high-value balance of %s",
					a.AccountNo, a.LineOutstanding),
				Account: a,
			})
		}
	}
	return drafts
}

// sharedMobile flags every member of a group of five or more accounts
// registered under one mobile number.
func sharedMobile(snap *domain.Snapshot, idx *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if a.MobileNo == "" {
			continue
		}
		group := idx.ByMobile(a.MobileNo)
		if len(group) < sharedMobileMinGroup {
			continue
		}
		drafts = append(drafts, Draft{
			Type: domain.AlertSharedMobile,
			Description: fmt.Sprintf("mobile %s is shared by %d accounts including %s",
				a.MobileNo, len(group), a.AccountNo),
			Account: a,
		})
	}
	return drafts
}

// sharedAadhaar flags every member of a group of two or more accounts
// registered under one Aadhaar number.
func sharedAadhaar(snap *domain.Snapshot, idx *correlate.Index, _ time.Time) []Draft {
	var drafts []Draft
	for _, a := range snap.Accounts {
		if a.AadhaarNo == "" {
			continue
		}
		group := idx.ByAadhaar(a.AadhaarNo)
		if len(group) < sharedAadhaarMinGroup {
			continue
		}
		drafts = append(drafts, Draft{
			Type: domain.AlertSharedAadhaar,
			Description: fmt.Sprintf("Aadhaar %s is shared by %d accounts including %s",
				a.AadhaarNo, len(group), a.AccountNo),
			Account: a,
		})
	}
	return drafts
}
