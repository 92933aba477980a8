package domain

import (
	"encoding/json"
	"time"
)

// Date is a calendar date that may be unknown. Upstream serializes dates
// as DD/MM/YYYY with the sentinel 99/99/9999 meaning "no applicable date";
// both the sentinel and any unparseable value normalize to the unknown
// state. Callers must check Known before using the time value.
type Date struct {
	t     time.Time
	known bool
}

// NewDate returns a known Date for t (truncated to the day).
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), known: true}
}

// UnknownDate returns the unknown Date value. The zero Date is also unknown.
func UnknownDate() Date {
	return Date{}
}

// Known reports whether the date carries a usable calendar value.
func (d Date) Known() bool {
	return d.known
}

// Time returns the underlying day. Only meaningful when Known is true.
func (d Date) Time() time.Time {
	return d.t
}

// String renders the date in the upstream DD/MM/YYYY form, or the
// sentinel when unknown.
func (d Date) String() string {
	if !d.known {
		return "99/99/9999"
	}
	return d.t.Format("02/01/2006")
}

// MarshalJSON serializes the date in upstream form.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts the upstream form; the sentinel and malformed
// values both decode to the unknown state.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "99/99/9999" {
		*d = UnknownDate()
		return nil
	}
	t, err := time.Parse("02/01/2006", raw)
	if err != nil {
		*d = UnknownDate()
		return nil
	}
	*d = NewDate(t)
	return nil
}
