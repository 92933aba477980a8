package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"Plain", "1500.00", "1500"},
		{"ThousandsSeparators", "1,23,456.78", "123456.78"},
		{"Negative", "-45.50", "-45.5"},
		{"Whitespace", "  200 ", "200"},
		{"Empty", "", "0"},
		{"Garbage", "N/A", "0"},
		{"TrailingJunk", "12.5x", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseAmount(tc.raw)
			want, _ := decimal.NewFromString(tc.want)
			if !got.Equal(want) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	t.Run("ValidDate", func(t *testing.T) {
		d := ParseDate("15/06/2023")
		if !d.Known() {
			t.Fatal("expected known date")
		}
		if got := d.Time(); got.Day() != 15 || got.Month() != time.June || got.Year() != 2023 {
			t.Errorf("unexpected date: %v", got)
		}
	})

	t.Run("Sentinel", func(t *testing.T) {
		if ParseDate("99/99/9999").Known() {
			t.Error("sentinel should be unknown")
		}
	})

	t.Run("InvalidCalendarDate", func(t *testing.T) {
		if ParseDate("31/02/2020").Known() {
			t.Error("impossible calendar date should be unknown")
		}
	})

	t.Run("WrongFormat", func(t *testing.T) {
		if ParseDate("2023-06-15").Known() {
			t.Error("ISO format should be unknown")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if ParseDate("").Known() {
			t.Error("empty string should be unknown")
		}
	})
}

func TestParseCount(t *testing.T) {
	if got := ParseCount("3"); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := ParseCount("-1"); got != 0 {
		t.Errorf("negative should degrade to 0, got %d", got)
	}
	if got := ParseCount("many"); got != 0 {
		t.Errorf("garbage should degrade to 0, got %d", got)
	}
}

func TestIsWeekend(t *testing.T) {
	// 17/06/2023 is a Saturday, 19/06/2023 a Monday
	if !IsWeekend(ParseDate("17/06/2023")) {
		t.Error("expected Saturday to be weekend")
	}
	if IsWeekend(ParseDate("19/06/2023")) {
		t.Error("expected Monday to not be weekend")
	}
	if IsWeekend(domain.UnknownDate()) {
		t.Error("unknown date must never be weekend")
	}
}

func TestMonthsSince(t *testing.T) {
	now := time.Date(2023, time.June, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"ExactYear", "15/06/2022", 12},
		{"PartialMonth", "20/01/2023", 4},
		{"WholeMonths", "15/01/2023", 5},
		{"SameDay", "15/06/2023", 0},
		{"Future", "15/06/2024", 0},
		{"Unknown", "99/99/9999", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MonthsSince(now, ParseDate(tc.raw)); got != tc.want {
				t.Errorf("MonthsSince(%q) = %d, want %d", tc.raw, got, tc.want)
			}
		})
	}
}

func TestRecord(t *testing.T) {
	rec := &domain.AccountRecord{
		PacsAccountNo:         "101",
		PacsName:              "SEVA SOCIETY",
		OutstandingAmount:     "75000.00",
		MemberCustomerNo:      "403000045035",
		MemberAccountNo:       "ACC-9",
		MemberAccountName:     " RAMESH ",
		BrNo:                  "14",
		MemberProdName:        "KCC LOAN",
		MemberLimitSanctioned: "50,000.00",
		MemberPrevYearLimit:   "40000",
		MemberOutstanding:     "12000.50",
		MemberUnpaidPrinciple: "bad-value",
		MemberIrregularity:    "0",
		MemberDueDate:         "99/99/9999",
		DisbursementDate:      "17/06/2023",
		LastActivityDate:      "",
		FullWithdrawalCount:   "4",
		AtmDistanceKm:         "62",
	}

	a := Record(rec)

	if a.CustomerNo != "403000045035" {
		t.Errorf("unexpected customer no: %q", a.CustomerNo)
	}
	if a.AccountName != "RAMESH" {
		t.Errorf("expected trimmed account name, got %q", a.AccountName)
	}
	if !a.LimitSanctioned.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("unexpected limit: %s", a.LimitSanctioned)
	}
	if !a.UnpaidPrincipal.IsZero() {
		t.Errorf("malformed amount should be zero, got %s", a.UnpaidPrincipal)
	}
	if !a.LineOutstanding.Equal(decimal.NewFromInt(75000)) {
		t.Errorf("unexpected line outstanding: %s", a.LineOutstanding)
	}
	if a.DueDate.Known() {
		t.Error("sentinel due date should be unknown")
	}
	if !a.DisbursementDate.Known() {
		t.Error("expected known disbursement date")
	}
	if a.HasLastActivity {
		t.Error("empty last-activity field should mean no record")
	}
	if a.FullWithdrawalCount != 4 || a.AtmDistanceKm != 62 {
		t.Errorf("unexpected counters: %d, %d", a.FullWithdrawalCount, a.AtmDistanceKm)
	}
}

func TestSnapshot(t *testing.T) {
	records := []*domain.AccountRecord{
		{MemberAccountNo: "A-1", MemberOutstanding: "100.00"},
		{MemberAccountNo: "A-2", MemberOutstanding: "300.00"},
	}

	snap := Snapshot("society-001", records)

	if snap.SocietyID != "society-001" {
		t.Errorf("unexpected society id: %q", snap.SocietyID)
	}
	if len(snap.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(snap.Accounts))
	}
	if snap.Accounts[0].AccountNo != "A-1" || snap.Accounts[1].AccountNo != "A-2" {
		t.Error("snapshot must preserve upstream order")
	}

	stats := snap.Stats()
	if stats.TotalRecords != 2 {
		t.Errorf("expected 2 records, got %d", stats.TotalRecords)
	}
	if !stats.TotalOutstanding.Equal(decimal.NewFromInt(400)) {
		t.Errorf("unexpected total outstanding: %s", stats.TotalOutstanding)
	}
	if !stats.AverageOutstanding.Equal(decimal.NewFromInt(200)) {
		t.Errorf("unexpected average outstanding: %s", stats.AverageOutstanding)
	}
}
