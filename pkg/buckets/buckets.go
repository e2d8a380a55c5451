// Package buckets is the single place where record timestamps are turned into
// distribution buckets. The bundler, the directory formatters and the retention
// path parser all go through these functions so they can never disagree.
package buckets

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	secondsPerHour = 3600
	hoursPerDay    = 24
	secondsPerDay  = secondsPerHour * hoursPerDay

	// DateLayout is the path encoding of a Date.
	DateLayout = "2006-01-02"
)

// ErrNegativeRetention is returned when a retention period below zero is requested.
var ErrNegativeRetention = errors.New("buckets: retention days must not be negative")

// Hour is a bucket key counted in whole hours since the UNIX epoch.
type Hour int64

// Date is a bucket key counted in whole UTC days since the UNIX epoch.
type Date int64

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// HourOf returns the hour bucket containing t.
func HourOf(t time.Time) Hour {
	return Hour(floorDiv(t.Unix(), secondsPerHour))
}

// DateOf returns the UTC date bucket containing t.
func DateOf(t time.Time) Date {
	return Date(floorDiv(t.Unix(), secondsPerDay))
}

// Time returns the first instant of the hour.
func (h Hour) Time() time.Time {
	return time.Unix(int64(h)*secondsPerHour, 0).UTC()
}

// Date returns the UTC date the hour belongs to.
func (h Hour) Date() Date {
	return Date(floorDiv(int64(h), hoursPerDay))
}

// String formats the hour as a plain decimal integer.
func (h Hour) String() string {
	return FormatHour(h)
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

// FirstHour returns the first hour bucket of the date.
func (d Date) FirstHour() Hour {
	return Hour(int64(d) * hoursPerDay)
}

// AddDays shifts the date by n days.
func (d Date) AddDays(n int) Date {
	return d + Date(n)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return FormatDate(d)
}

// FormatHour is the directory name of an hour bucket.
func FormatHour(h Hour) string {
	return strconv.FormatInt(int64(h), 10)
}

// ParseHour parses a directory name produced by FormatHour.
func ParseHour(s string) (Hour, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hour %q: %w", s, err)
	}
	return Hour(v), nil
}

// FormatDate is the directory name of a date bucket.
func FormatDate(d Date) string {
	return d.Time().Format(DateLayout)
}

// ParseDate parses a directory name produced by FormatDate.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// RetentionThresholdHour is the oldest hour bucket that survives a retention of
// days. Buckets strictly below it are expired.
func RetentionThresholdHour(now time.Time, days int) (Hour, error) {
	if days < 0 {
		return 0, ErrNegativeRetention
	}
	return HourOf(now.AddDate(0, 0, -days)), nil
}

// RetentionThresholdSeconds is the epoch-second counterpart of
// RetentionThresholdHour for rows stored with second precision.
func RetentionThresholdSeconds(now time.Time, days int) (int64, error) {
	if days < 0 {
		return 0, ErrNegativeRetention
	}
	return now.AddDate(0, 0, -days).Unix(), nil
}

// CutoffDate is the oldest date that survives a retention of days. Dates equal
// to the cutoff are retained.
func CutoffDate(now time.Time, days int) (Date, error) {
	if days < 0 {
		return 0, ErrNegativeRetention
	}
	return DateOf(now).AddDays(-days), nil
}

var (
	datePathPattern = regexp.MustCompile(`^.*([0-9]{4}-[0-9]{2}-[0-9]{2}).*$`)
	hourPathPattern = regexp.MustCompile(`^.*/hour/([0-9]{6,7})(/.*)?$`)
)

// IsHourPath reports whether key lies inside an hour folder.
func IsHourPath(key string) bool {
	return strings.Contains(key, "/hour/")
}

// DateFromPath extracts the date bucket embedded in an object key.
func DateFromPath(key string) (Date, bool) {
	m := datePathPattern.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	d, err := ParseDate(m[1])
	if err != nil {
		return 0, false
	}
	return d, true
}

// HourFromPath extracts the hour bucket of an object key inside an hour folder.
func HourFromPath(key string) (Hour, bool) {
	m := hourPathPattern.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	h, err := ParseHour(m[1])
	if err != nil {
		return 0, false
	}
	return h, true
}
