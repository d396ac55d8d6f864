package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for schedule dates.
const DateLayout = "2006-01-02"

const (
	slotStepMinutes  = 30
	firstSlotMinutes = 8 * 60
	lastSlotMinutes  = 23 * 60
)

// ClassDate is a calendar date without time-of-day or zone.
type ClassDate struct {
	time.Time
}

// NewClassDate truncates t to its calendar date in UTC.
func NewClassDate(t time.Time) ClassDate {
	y, m, d := t.Date()
	return ClassDate{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseClassDate parses a YYYY-MM-DD string.
func ParseClassDate(raw string) (ClassDate, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return ClassDate{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return ClassDate{Time: t}, nil
}

// String renders the date as YYYY-MM-DD.
func (d ClassDate) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Equal compares calendar dates.
func (d ClassDate) Equal(other ClassDate) bool {
	return d.String() == other.String()
}

// MarshalJSON implements json.Marshaler.
func (d ClassDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *ClassDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = ClassDate{}
		return nil
	}
	parsed, err := ParseClassDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d ClassDate) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *ClassDate) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = ClassDate{}
		return nil
	case time.Time:
		*d = NewClassDate(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ClassDate", src)
	}
}

func (d *ClassDate) scanString(raw string) error {
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	parsed, err := ParseClassDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ClassTime is a 24-hour HH:MM start time on a 30-minute grid between 08:00 and
// 23:00 inclusive. Its string form sorts chronologically.
type ClassTime string

// ParseClassTime validates and normalises raw into a ClassTime. "9:30" becomes "09:30".
func ParseClassTime(raw string) (ClassTime, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	minutes := t.Hour()*60 + t.Minute()
	if minutes%slotStepMinutes != 0 {
		return "", fmt.Errorf("invalid time %q: must fall on a 30-minute boundary", raw)
	}
	if minutes < firstSlotMinutes || minutes > lastSlotMinutes {
		return "", fmt.Errorf("invalid time %q: classes start between 08:00 and 23:00", raw)
	}
	return ClassTime(t.Format("15:04")), nil
}

// Minutes returns minutes after midnight, or -1 when the value is malformed.
func (t ClassTime) Minutes() int {
	parsed, err := time.Parse("15:04", string(t))
	if err != nil {
		return -1
	}
	return parsed.Hour()*60 + parsed.Minute()
}

// Display12h renders the time for presentation, e.g. "2:30 PM".
func (t ClassTime) Display12h() string {
	parsed, err := time.Parse("15:04", string(t))
	if err != nil {
		return string(t)
	}
	return parsed.Format("3:04 PM")
}

// ClassTimeSlots enumerates every valid start time in order.
func ClassTimeSlots() []ClassTime {
	out := make([]ClassTime, 0, (lastSlotMinutes-firstSlotMinutes)/slotStepMinutes+1)
	for m := firstSlotMinutes; m <= lastSlotMinutes; m += slotStepMinutes {
		out = append(out, ClassTime(fmt.Sprintf("%02d:%02d", m/60, m%60)))
	}
	return out
}
