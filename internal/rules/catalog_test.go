package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cooperative-finance/kestrel/internal/correlate"
	"github.com/cooperative-finance/kestrel/internal/domain"
	"github.com/cooperative-finance/kestrel/internal/normalize"
)

var testNow = time.Date(2023, time.June, 15, 0, 0, 0, 0, time.UTC)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func snapOf(accounts ...*domain.Account) (*domain.Snapshot, *correlate.Index) {
	snap := &domain.Snapshot{SocietyID: "society-001", Accounts: accounts}
	return snap, correlate.Build(snap)
}

func TestRepaymentDefault(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", Outstanding: amt("500"), UnpaidPrincipal: amt("100")},
		&domain.Account{AccountNo: "A-2", Outstanding: amt("500")},
		&domain.Account{AccountNo: "A-3", UnpaidPrincipal: amt("100")},
	)

	drafts := repaymentDefault(snap, idx, testNow)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	if drafts[0].Account.AccountNo != "A-1" {
		t.Errorf("wrong account: %s", drafts[0].Account.AccountNo)
	}
}

func TestRepetitiveKindLoan(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", CustomerNo: "403000045035", ProductName: "DMR KCC KIND"},
		&domain.Account{AccountNo: "A-2", CustomerNo: "403000045035", ProductName: "DMR KCC KIND"},
		&domain.Account{AccountNo: "A-3", CustomerNo: "403000045035", ProductName: "CASH CREDIT"},
		&domain.Account{AccountNo: "A-4", CustomerNo: "C-9", ProductName: "DMR KCC KIND"},
	)

	drafts := repetitiveKindLoan(snap, idx, testNow)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	for _, d := range drafts {
		if !strings.Contains(d.Description, "403000045035") {
			t.Errorf("description must name the customer id: %q", d.Description)
		}
	}
	if drafts[0].Account.AccountNo != "A-1" || drafts[1].Account.AccountNo != "A-2" {
		t.Error("drafts must follow snapshot order")
	}
}

func TestUnmarkedOverdue(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", Outstanding: amt("250"), Irregularity: amt("0")},
		&domain.Account{AccountNo: "A-2", Outstanding: amt("250"), Irregularity: amt("80")},
	)

	drafts := unmarkedOverdue(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("expected only A-1 flagged, got %d drafts", len(drafts))
	}
}

func TestStaffBeneficiary(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", AccountName: "Ramesh (staff)"},
		&domain.Account{AccountNo: "A-2", AccountName: "SURESH"},
	)

	drafts := staffBeneficiary(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("case-insensitive match expected for A-1 only, got %d drafts", len(drafts))
	}
}

func TestLimitSurge(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", PrevYearLimit: amt("1000"), LimitSanctioned: amt("1200")},
		&domain.Account{AccountNo: "A-2", PrevYearLimit: amt("1000"), LimitSanctioned: amt("1150")},
		&domain.Account{AccountNo: "A-3", PrevYearLimit: amt("0"), LimitSanctioned: amt("9999")},
	)

	drafts := limitSurge(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("only >15%% surge with positive prior limit should flag, got %d drafts", len(drafts))
	}
}

func TestWeekendDisbursal(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", DisbursementDate: normalize.ParseDate("17/06/2023")}, // Saturday
		&domain.Account{AccountNo: "A-2", DisbursementDate: normalize.ParseDate("19/06/2023")}, // Monday
		&domain.Account{AccountNo: "A-3", DisbursementDate: normalize.ParseDate("99/99/9999")},
	)

	drafts := weekendDisbursal(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("expected only Saturday disbursement flagged, got %d drafts", len(drafts))
	}
}

func TestNoLinkedActivity(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", ProductName: "KCC LOAN", Outstanding: amt("100"), HasLastActivity: false},
		&domain.Account{AccountNo: "A-2", ProductName: "KCC LOAN", Outstanding: amt("100"), HasLastActivity: true},
		&domain.Account{AccountNo: "A-3", ProductName: "TERM LOAN", Outstanding: amt("100"), HasLastActivity: false},
	)

	drafts := noLinkedActivity(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("expected only KCC account without activity record, got %d drafts", len(drafts))
	}
}

func TestDistantATMUse(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", AtmDistanceKm: 62, LineOutstanding: amt("25000")},
		&domain.Account{AccountNo: "A-2", AtmDistanceKm: 62, LineOutstanding: amt("20000")},
		&domain.Account{AccountNo: "A-3", AtmDistanceKm: 50, LineOutstanding: amt("25000")},
	)

	drafts := distantATMUse(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("both thresholds must be strictly exceeded, got %d drafts", len(drafts))
	}
}

func TestFrequentWithdrawal(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", FullWithdrawalCount: 3},
		&domain.Account{AccountNo: "A-2", FullWithdrawalCount: 2},
	)

	drafts := frequentWithdrawal(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("expected count > 2 to flag, got %d drafts", len(drafts))
	}
}

func TestDormantReactivated(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", LastActivity: normalize.ParseDate("10/12/2022"), Outstanding: amt("300")},
		&domain.Account{AccountNo: "A-2", LastActivity: normalize.ParseDate("10/04/2023"), Outstanding: amt("300")},
		&domain.Account{AccountNo: "A-3", LastActivity: normalize.ParseDate("99/99/9999"), Outstanding: amt("300")},
		&domain.Account{AccountNo: "A-4", LastActivity: normalize.ParseDate("10/12/2022")},
	)

	drafts := dormantReactivated(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("expected only 6+ month dormancy with outstanding, got %d drafts", len(drafts))
	}
}

func TestHighValueDeposit(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", LineOutstanding: amt("50001")},
		&domain.Account{AccountNo: "A-2", LineOutstanding: amt("50000")},
	)

	drafts := highValueDeposit(snap, idx, testNow)
	if len(drafts) != 1 || drafts[0].Account.AccountNo != "A-1" {
		t.Fatalf("threshold must be strictly exceeded, got %d drafts", len(drafts))
	}
}

func TestSharedMobile(t *testing.T) {
	t.Run("GroupOfFive", func(t *testing.T) {
		accounts := make([]*domain.Account, 5)
		for i := range accounts {
			accounts[i] = &domain.Account{AccountNo: "A-" + string(rune('1'+i)), MobileNo: "9000000001"}
		}
		snap, idx := snapOf(accounts...)

		drafts := sharedMobile(snap, idx, testNow)
		if len(drafts) != 5 {
			t.Fatalf("expected one draft per group member, got %d", len(drafts))
		}
	})

	t.Run("GroupOfFour", func(t *testing.T) {
		accounts := make([]*domain.Account, 4)
		for i := range accounts {
			accounts[i] = &domain.Account{AccountNo: "A-" + string(rune('1'+i)), MobileNo: "9000000001"}
		}
		snap, idx := snapOf(accounts...)

		if drafts := sharedMobile(snap, idx, testNow); len(drafts) != 0 {
			t.Fatalf("groups below 5 must not flag, got %d drafts", len(drafts))
		}
	})

	t.Run("EmptyMobileNeverGroups", func(t *testing.T) {
		accounts := make([]*domain.Account, 6)
		for i := range accounts {
			accounts[i] = &domain.Account{AccountNo: "A-" + string(rune('1'+i))}
		}
		snap, idx := snapOf(accounts...)

		if drafts := sharedMobile(snap, idx, testNow); len(drafts) != 0 {
			t.Fatalf("accounts without mobiles must never correlate, got %d drafts", len(drafts))
		}
	})
}

func TestSharedAadhaar(t *testing.T) {
	snap, idx := snapOf(
		&domain.Account{AccountNo: "A-1", AadhaarNo: "AD-1"},
		&domain.Account{AccountNo: "A-2", AadhaarNo: "AD-1"},
		&domain.Account{AccountNo: "A-3", AadhaarNo: "AD-2"},
	)

	drafts := sharedAadhaar(snap, idx, testNow)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts for the shared pair, got %d", len(drafts))
	}
}

func TestCatalogOrder(t *testing.T) {
	want := []domain.AlertType{
		domain.AlertRepaymentDefault,
		domain.AlertRepetitiveKindLoan,
		domain.AlertUnmarkedOverdue,
		domain.AlertStaffBeneficiary,
		domain.AlertLimitSurge,
		domain.AlertWeekendDisbursal,
		domain.AlertNoLinkedActivity,
		domain.AlertDistantATMUse,
		domain.AlertFrequentWithdrawal,
		domain.AlertDormantReactivated,
		domain.AlertHighValueDeposit,
		domain.AlertSharedMobile,
		domain.AlertSharedAadhaar,
	}

	catalog := Catalog()
	if len(catalog) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(catalog))
	}
	for i, rule := range catalog {
		if rule.Type != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], rule.Type)
		}
	}
}
