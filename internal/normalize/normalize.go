// Package normalize converts raw string-typed account records into the
// typed domain model. All conversion happens exactly once, at snapshot
// ingestion; rules never see raw strings.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

// dateLayout is the upstream DD/MM/YYYY wire format.
const dateLayout = "02/01/2006"

// sentinelDate is the upstream marker for "no applicable date".
const sentinelDate = "99/99/9999"

// ParseAmount interprets a decimal string, tolerating thousands
// separators. Malformed input degrades to zero rather than failing the
// run; a single bad field must not abort evaluation of a snapshot.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseDate interprets a DD/MM/YYYY string. The sentinel and any value
// that fails to parse (including impossible calendar dates) both
// normalize to the unknown state.
func ParseDate(raw string) domain.Date {
	s := strings.TrimSpace(raw)
	if s == "" || s == sentinelDate {
		return domain.UnknownDate()
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return domain.UnknownDate()
	}
	return domain.NewDate(t)
}

// ParseCount interprets a non-negative integer string; malformed or
// negative input degrades to zero.
func ParseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// IsWeekend reports whether a known date falls on Saturday or Sunday.
// Unknown dates are never weekends.
func IsWeekend(d domain.Date) bool {
	if !d.Known() {
		return false
	}
	wd := d.Time().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MonthsSince returns the number of whole calendar months elapsed from d
// to now, or zero when the date is unknown or in the future.
func MonthsSince(now time.Time, d domain.Date) int {
	if !d.Known() {
		return 0
	}
	t := d.Time()
	months := (now.Year()-t.Year())*12 + int(now.Month()) - int(t.Month())
	if now.Day() < t.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// Record normalizes one raw account record.
func Record(rec *domain.AccountRecord) *domain.Account {
	return &domain.Account{
		SocietyAccountNo: strings.TrimSpace(rec.PacsAccountNo),
		SocietyName:      strings.TrimSpace(rec.PacsName),
		CustomerNo:       strings.TrimSpace(rec.MemberCustomerNo),
		AccountNo:        strings.TrimSpace(rec.MemberAccountNo),
		AccountName:      strings.TrimSpace(rec.MemberAccountName),
		BranchNo:         strings.TrimSpace(rec.BrNo),
		ProductName:      strings.TrimSpace(rec.MemberProdName),

		MobileNo:  strings.TrimSpace(rec.MobileNo),
		AadhaarNo: strings.TrimSpace(rec.AadhaarNo),

		LimitSanctioned: ParseAmount(rec.MemberLimitSanctioned),
		PrevYearLimit:   ParseAmount(rec.MemberPrevYearLimit),
		DrawingPower:    ParseAmount(rec.MemberDrawingPower),
		Outstanding:     ParseAmount(rec.MemberOutstanding),
		UnpaidPrincipal: ParseAmount(rec.MemberUnpaidPrinciple),
		Irregularity:    ParseAmount(rec.MemberIrregularity),
		LineOutstanding: ParseAmount(rec.OutstandingAmount),

		DueDate:          ParseDate(rec.MemberDueDate),
		DisbursementDate: ParseDate(rec.DisbursementDate),
		LastActivity:     ParseDate(rec.LastActivityDate),
		HasLastActivity:  strings.TrimSpace(rec.LastActivityDate) != "",

		FullWithdrawalCount: ParseCount(rec.FullWithdrawalCount),
		AtmDistanceKm:       ParseCount(rec.AtmDistanceKm),
	}
}

// Snapshot normalizes a full batch of records for one society,
// preserving upstream delivery order.
func Snapshot(societyID string, records []*domain.AccountRecord) *domain.Snapshot {
	accounts := make([]*domain.Account, 0, len(records))
	for _, rec := range records {
		accounts = append(accounts, Record(rec))
	}
	return &domain.Snapshot{
		SocietyID: societyID,
		Accounts:  accounts,
	}
}
