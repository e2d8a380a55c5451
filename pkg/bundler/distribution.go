package bundler

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/dlog"
)

// Distribution maps country and distribution hour to the records published
// in that hour. It is filled once per run and read-only afterwards. An hour
// present with no records is a placeholder.
type Distribution[R any] struct {
	asOf buckets.Hour
	from buckets.Hour

	buckets       map[string]map[buckets.Hour][]R
	rejectedHours map[string]map[buckets.Hour]bool
	rejectedDates map[string]map[buckets.Date]bool
}

// window returns the distributable hours [from, to) for a run at asOf. The
// current hour is still filling and therefore excluded.
func window(asOf time.Time, days int) (from, to buckets.Hour, err error) {
	if days < 0 {
		return 0, 0, ErrNegativeWindow
	}
	to = buckets.HourOf(asOf)
	return to - buckets.Hour(days*24), to, nil
}

func (d *Distribution[R]) reset(from, to buckets.Hour) {
	d.from, d.asOf = from, to
	d.buckets = map[string]map[buckets.Hour][]R{}
	d.rejectedHours = map[string]map[buckets.Hour]bool{}
	d.rejectedDates = map[string]map[buckets.Date]bool{}
}

func (d *Distribution[R]) inWindow(h buckets.Hour) bool {
	return h >= d.from && h < d.asOf
}

// add appends records to a bucket, creating it when missing.
func (d *Distribution[R]) add(country string, hour buckets.Hour, records ...R) {
	hours, ok := d.buckets[country]
	if !ok {
		hours = map[buckets.Hour][]R{}
		d.buckets[country] = hours
	}
	if _, ok := hours[hour]; !ok {
		hours[hour] = []R{}
	}
	hours[hour] = append(hours[hour], records...)
}

// enforceLimit rejects buckets above limit. In strict mode the first
// violation is returned as an error.
func (d *Distribution[R]) enforceLimit(ctx context.Context, limit int, strict bool) error {
	if limit <= 0 {
		return nil
	}
	logger := dlog.FromContext(ctx)

	for _, country := range d.Countries() {
		dateCounts := map[buckets.Date]int{}
		for _, hour := range d.sortedHours(country) {
			n := len(d.buckets[country][hour])
			dateCounts[hour.Date()] += n
			if n <= limit {
				continue
			}
			logger.Error("Number of records for hour exceeds the configured maximum",
				"country", country, "hour", hour, "count", n, "max", limit)
			if strict {
				return fmt.Errorf("%w: %s hour %s has %d records (max %d)", ErrBucketLimitExceeded, country, hour, n, limit)
			}
			mark(d.rejectedHours, country, hour)
		}

		for _, date := range slices.Sorted(maps.Keys(dateCounts)) {
			n := dateCounts[date]
			if n <= limit {
				continue
			}
			logger.Error("Number of records for date exceeds the configured maximum",
				"country", country, "date", date, "count", n, "max", limit)
			if strict {
				return fmt.Errorf("%w: %s date %s has %d records (max %d)", ErrBucketLimitExceeded, country, date, n, limit)
			}
			mark(d.rejectedDates, country, date)
		}
	}
	return nil
}

func mark[K comparable](m map[string]map[K]bool, country string, key K) {
	if m[country] == nil {
		m[country] = map[K]bool{}
	}
	m[country][key] = true
}

// AsOf is the first hour not distributed by this run.
func (d *Distribution[R]) AsOf() buckets.Hour { return d.asOf }

// Window returns the distributable hours as [from, to).
func (d *Distribution[R]) Window() (from, to buckets.Hour) { return d.from, d.asOf }

// Countries lists the countries with at least one bucket, sorted.
func (d *Distribution[R]) Countries() []string {
	return slices.Sorted(maps.Keys(d.buckets))
}

func (d *Distribution[R]) sortedHours(country string) []buckets.Hour {
	return slices.Sorted(maps.Keys(d.buckets[country]))
}

// Hours lists the distributable hours of country in ascending order.
func (d *Distribution[R]) Hours(country string) []buckets.Hour {
	var out []buckets.Hour
	for _, h := range d.sortedHours(country) {
		if !d.rejectedHours[country][h] {
			out = append(out, h)
		}
	}
	return out
}

// Dates lists the distributable dates of country in ascending order.
func (d *Distribution[R]) Dates(country string) []buckets.Date {
	var out []buckets.Date
	for _, h := range d.sortedHours(country) {
		date := h.Date()
		if d.rejectedDates[country][date] {
			continue
		}
		if len(out) == 0 || out[len(out)-1] != date {
			out = append(out, date)
		}
	}
	return out
}

// HoursOn lists the distributable hours of country on date.
func (d *Distribution[R]) HoursOn(country string, date buckets.Date) []buckets.Hour {
	var out []buckets.Hour
	for _, h := range d.Hours(country) {
		if h.Date() == date {
			out = append(out, h)
		}
	}
	return out
}

// RecordsForHour returns the records published in hour. The slice must not be modified.
func (d *Distribution[R]) RecordsForHour(country string, hour buckets.Hour) []R {
	return d.buckets[country][hour]
}

// RecordsForDate returns every record of date in hour order.
func (d *Distribution[R]) RecordsForDate(country string, date buckets.Date) []R {
	var out []R
	for _, h := range d.sortedHours(country) {
		if h.Date() == date {
			out = append(out, d.buckets[country][h]...)
		}
	}
	return out
}

// Oldest returns the earliest distributable hour of country.
func (d *Distribution[R]) Oldest(country string) (buckets.Hour, bool) {
	hours := d.Hours(country)
	if len(hours) == 0 {
		return 0, false
	}
	return hours[0], true
}

// Latest returns the last distributable hour of country.
func (d *Distribution[R]) Latest(country string) (buckets.Hour, bool) {
	hours := d.Hours(country)
	if len(hours) == 0 {
		return 0, false
	}
	return hours[len(hours)-1], true
}

// Count returns the number of records held for country.
func (d *Distribution[R]) Count(country string) int {
	n := 0
	for _, records := range d.buckets[country] {
		n += len(records)
	}
	return n
}
