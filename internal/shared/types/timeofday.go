package types

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeOfDay is a slot-aligned wall-clock time in "HH:MM" form.
type TimeOfDay string

// ParseTimeOfDay validates and normalizes an "HH:MM" string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Format("15:04")), nil
}

// MustParseTimeOfDay parses an "HH:MM" string, panics on error
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayFromMinutes builds a TimeOfDay from minutes since midnight
func TimeOfDayFromMinutes(m int) TimeOfDay {
	return TimeOfDay(fmt.Sprintf("%02d:%02d", m/60, m%60))
}

// String returns the "HH:MM" representation
func (t TimeOfDay) String() string {
	return string(t)
}

// IsZero checks if the time is empty
func (t TimeOfDay) IsZero() bool {
	return t == ""
}

// Hour returns the hour component (0-23)
func (t TimeOfDay) Hour() int {
	var h, m int
	fmt.Sscanf(string(t), "%d:%d", &h, &m)
	return h
}

// Minutes returns minutes since midnight
func (t TimeOfDay) Minutes() int {
	var h, m int
	fmt.Sscanf(string(t), "%d:%d", &h, &m)
	return h*60 + m
}

// Add returns the time advanced by the given number of minutes
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return TimeOfDayFromMinutes(t.Minutes() + minutes)
}

// Before reports whether t is earlier in the day than other
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.Minutes() < other.Minutes()
}

// Value implements driver.Valuer for database serialization
func (t TimeOfDay) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return string(t), nil
}

// Scan implements sql.Scanner for database deserialization
func (t *TimeOfDay) Scan(value interface{}) error {
	if value == nil {
		*t = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*t = normalizeScannedTime(v)
	case []byte:
		*t = normalizeScannedTime(string(v))
	case time.Time:
		*t = TimeOfDay(v.Format("15:04"))
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", value)
	}
	return nil
}

// Postgres TIME columns come back as "HH:MM:SS"; truncate to slot precision.
func normalizeScannedTime(s string) TimeOfDay {
	if len(s) > 5 {
		s = s[:5]
	}
	return TimeOfDay(s)
}

// Date is a calendar date without a time component, in "YYYY-MM-DD" form.
type Date string

// ParseDate validates and normalizes a "YYYY-MM-DD" string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(t.Format("2006-01-02")), nil
}

// MustParseDate parses a "YYYY-MM-DD" string, panics on error
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf truncates a time.Time to its calendar date
func DateOf(t time.Time) Date {
	return Date(t.Format("2006-01-02"))
}

// String returns the "YYYY-MM-DD" representation
func (d Date) String() string {
	return string(d)
}

// IsZero checks if the date is empty
func (d Date) IsZero() bool {
	return d == ""
}

// Weekday returns the day of week for the date
func (d Date) Weekday() time.Weekday {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return time.Sunday
	}
	return t.Weekday()
}

// Time returns the date at midnight UTC
func (d Date) Time() time.Time {
	t, _ := time.Parse("2006-01-02", string(d))
	return t
}

// Value implements driver.Valuer for database serialization
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return string(d), nil
}

// Scan implements sql.Scanner for database deserialization
func (d *Date) Scan(value interface{}) error {
	if value == nil {
		*d = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*d = Date(v)
	case []byte:
		*d = Date(string(v))
	case time.Time:
		*d = DateOf(v)
	default:
		return fmt.Errorf("cannot scan %T into Date", value)
	}
	return nil
}
