package ingest

import (
	"bufio"
	"io"
	"strings"
	"unicode"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

// ignoreTokens are report filler cells stripped before positional
// mapping: section markers, placeholder zeros, and repeated sub-headers.
var ignoreTokens = map[string]struct{}{
	"(MEM)":     {},
	"(PACS)":    {},
	"0":         {},
	"":          {},
	"MEM":       {},
	"PROD NAME": {},
}

// minReportColumns is the cleaned column count below which a row is
// treated as decoration rather than data.
const minReportColumns = 15

// ParseReport reads a pipe-delimited core-banking loan report and
// returns the account records it contains. Header lines, page breaks,
// ruled separators, and short rows are skipped; a malformed line never
// fails the whole import.
func ParseReport(r io.Reader) ([]*domain.AccountRecord, error) {
	var records []*domain.AccountRecord

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.Contains(line, "REPORT-ID") ||
			strings.Contains(line, "SR.NO") ||
			strings.Contains(line, "PAGE NO") ||
			strings.HasPrefix(line, "-") ||
			strings.TrimSpace(line) == "" {
			continue
		}

		// Data rows start with a serial number.
		if !startsWithDigit(line) {
			continue
		}

		cleaned := cleanColumns(strings.Split(line, "|"))
		if len(cleaned) < minReportColumns {
			continue
		}

		records = append(records, recordFromColumns(cleaned))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func startsWithDigit(line string) bool {
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		return unicode.IsDigit(r)
	}
	return false
}

func cleanColumns(columns []string) []string {
	cleaned := make([]string, 0, len(columns))
	for _, col := range columns {
		token := strings.TrimSpace(col)
		if _, skip := ignoreTokens[token]; skip {
			continue
		}
		cleaned = append(cleaned, token)
	}
	return cleaned
}

// recordFromColumns maps cleaned columns positionally. The report
// carries rate and accrued-interest columns the engine has no use for;
// they are read past, not stored. Fields the report does not carry
// (previous-year limit, contact identifiers, behavioral counters) stay
// empty and are supplied by the snapshot endpoint instead.
func recordFromColumns(cols []string) *domain.AccountRecord {
	return &domain.AccountRecord{
		SrNo:                   get(cols, 0),
		PacsProductCodeAndName: get(cols, 1),
		CustomerNo:             get(cols, 2),
		PacsAccountNo:          get(cols, 3),
		PacsName:               get(cols, 4),
		LimitSanctioned:        get(cols, 5),
		DrawingPower:           get(cols, 6),
		DueDate:                get(cols, 7),
		OutstandingAmount:      get(cols, 11),
		Irregularity:           get(cols, 12),

		MemberSrNo:            get(cols, 13),
		MemberProdName:        get(cols, 14),
		MemberCustomerNo:      get(cols, 15),
		MemberAccountNo:       get(cols, 16),
		MemberAccountName:     get(cols, 17),
		BrNo:                  get(cols, 18),
		MemberLimitSanctioned: get(cols, 19),
		MemberDrawingPower:    get(cols, 20),
		MemberDueDate:         get(cols, 21),
		MemberUnpaidPrinciple: get(cols, 22),
		MemberOutstanding:     get(cols, 26),
		MemberIrregularity:    get(cols, 27),
	}
}

func get(cols []string, i int) string {
	if i < len(cols) {
		return cols[i]
	}
	return ""
}
