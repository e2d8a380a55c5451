package bundler

import "github.com/quatton/expodist/pkg/buckets"

// Options configure the generic bucketer.
type Options struct {
	// RetentionDays is the width of the distributable window in days.
	RetentionDays int
	// MaxRecordsPerBucket rejects hour and date buckets holding more records.
	// Zero disables the limit.
	MaxRecordsPerBucket int
	// Strict turns an over-limit bucket into an error instead of a rejection.
	Strict bool
}

// KeyOptions configure the diagnosis key bundler on top of Options.
type KeyOptions struct {
	Options

	SupportedCountries           []string
	OriginCountry                string
	EUPackageName                string
	ExpiryPolicyMinutes          int
	ShiftingPolicyThreshold      int
	ApplyPoliciesForAllCountries bool

	// ShiftAnchors resume the shifting policy per country at an hour where no
	// keys were pending, as returned by a previous run. Anchors after the
	// window start are ignored.
	ShiftAnchors map[string]buckets.Hour
}
