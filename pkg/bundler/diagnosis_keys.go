package bundler

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/db/models"
	"github.com/quatton/expodist/pkg/dlog"
)

// DiagnosisKeyBundler distributes diagnosis keys per visited country. Keys of
// the origin country, or of every country when configured, are held back by
// the expiry policy and batched by the shifting policy. The EU package is the
// union of all country packages.
type DiagnosisKeyBundler struct {
	Distribution[models.DiagnosisKey]

	opts    KeyOptions
	anchors map[string]buckets.Hour
}

func NewDiagnosisKeyBundler(opts KeyOptions) *DiagnosisKeyBundler {
	return &DiagnosisKeyBundler{opts: opts}
}

// Packages lists the country packages in index order: the supported
// countries followed by the EU package.
func (b *DiagnosisKeyBundler) Packages() []string {
	out := slices.Clone(b.opts.SupportedCountries)
	if b.opts.EUPackageName != "" && !slices.Contains(out, b.opts.EUPackageName) {
		out = append(out, b.opts.EUPackageName)
	}
	return out
}

func (b *DiagnosisKeyBundler) Bundle(ctx context.Context, keys []models.DiagnosisKey, asOf time.Time) error {
	from, to, err := window(asOf, b.opts.RetentionDays)
	if err != nil {
		return err
	}
	b.reset(from, to)
	b.anchors = map[string]buckets.Hour{}

	grouped := b.groupByVisitedCountry(keys)
	for _, country := range b.opts.SupportedCountries {
		if country == b.opts.OriginCountry || b.opts.ApplyPoliciesForAllCountries {
			b.distributeWithPolicies(country, grouped[country])
		} else {
			b.distributeAtSubmission(country, grouped[country])
		}
	}
	if b.opts.EUPackageName != "" {
		b.distributeEUPackage()
	}

	dlog.FromContext(ctx).Debug("Bundled diagnosis keys",
		"keys", len(keys), "from", from, "to", to, "packages", len(b.buckets))

	return b.enforceLimit(ctx, b.opts.MaxRecordsPerBucket, b.opts.Strict)
}

// groupByVisitedCountry maps keys to the packages they may appear in. Keys
// without visited countries predate federation and belong to the origin.
func (b *DiagnosisKeyBundler) groupByVisitedCountry(keys []models.DiagnosisKey) map[string][]models.DiagnosisKey {
	origin := b.opts.OriginCountry
	grouped := map[string][]models.DiagnosisKey{}

	for _, k := range keys {
		if len(k.VisitedCountries) == 0 {
			grouped[origin] = append(grouped[origin], k)
			continue
		}
		for _, visited := range k.VisitedCountries {
			if !slices.Contains(b.opts.SupportedCountries, visited) {
				continue
			}
			// origin keys only go into the origin package
			if k.OriginCountry == origin && visited != origin {
				continue
			}
			// foreign keys that visited the origin are published through it
			if k.OriginCountry != origin && visited != origin && slices.Contains(k.VisitedCountries, origin) {
				continue
			}
			grouped[visited] = append(grouped[visited], k)
		}
	}
	return grouped
}

func (b *DiagnosisKeyBundler) distributeAtSubmission(country string, keys []models.DiagnosisKey) {
	for _, k := range keys {
		h := buckets.Hour(k.SubmissionTimestamp)
		if b.inWindow(h) {
			b.add(country, h, k)
		}
	}
}

// distributeWithPolicies walks the hours from the shift anchor, or from the
// earliest distribution hour without one, and emits accumulated keys once
// the threshold is reached. Hours before the window are walked but not
// emitted, so every run starting from the same anchor yields the same hours.
func (b *DiagnosisKeyBundler) distributeWithPolicies(country string, keys []models.DiagnosisKey) {
	start, anchored := b.opts.ShiftAnchors[country]
	if anchored && start > b.from {
		anchored = false
	}

	byHour := map[buckets.Hour][]models.DiagnosisKey{}
	earliest, found := buckets.Hour(0), false
	for _, k := range keys {
		h := b.DistributionHour(k)
		// already emitted before the anchor
		if anchored && h < start {
			continue
		}
		byHour[h] = append(byHour[h], k)
		if !found || h < earliest {
			earliest, found = h, true
		}
	}
	if !anchored {
		if !found {
			return
		}
		start = earliest
	}
	b.anchors[country] = start

	var acc []models.DiagnosisKey
	for h := start; h < b.asOf; h++ {
		acc = append(acc, byHour[h]...)
		if len(acc) >= b.opts.ShiftingPolicyThreshold {
			if h >= b.from {
				b.add(country, h, acc...)
			}
			acc = nil
			if h+1 <= b.from {
				b.anchors[country] = h + 1
			}
		} else if h >= b.from {
			b.add(country, h)
		}
	}
}

// ShiftAnchors returns per country the latest hour at or before the window
// start where the shifting policy had no pending keys. Keys distributed at
// or after an anchor must stay loadable for the next run.
func (b *DiagnosisKeyBundler) ShiftAnchors() map[string]buckets.Hour {
	return maps.Clone(b.anchors)
}

// DistributionHour is the earliest hour k may be published under the expiry
// policy. Keys submitted well after they expired go out at submission.
func (b *DiagnosisKeyBundler) DistributionHour(k models.DiagnosisKey) buckets.Hour {
	expiry := k.ExpiresAt()
	submitted := k.SubmittedAt()
	policy := time.Duration(b.opts.ExpiryPolicyMinutes) * time.Minute

	if submitted.Sub(expiry)/time.Minute <= time.Duration(b.opts.ExpiryPolicyMinutes) {
		return buckets.HourOf(expiry.Add(policy + time.Hour))
	}
	return buckets.HourOf(submitted)
}

func (b *DiagnosisKeyBundler) distributeEUPackage() {
	eu := b.opts.EUPackageName
	seen := map[buckets.Hour]map[string]bool{}

	for _, country := range b.Countries() {
		if country == eu {
			continue
		}
		for _, h := range b.sortedHours(country) {
			if seen[h] == nil {
				seen[h] = map[string]bool{}
			}
			var fresh []models.DiagnosisKey
			for _, k := range b.buckets[country][h] {
				id := string(k.KeyData)
				if seen[h][id] {
					continue
				}
				seen[h][id] = true
				fresh = append(fresh, k)
			}
			b.add(eu, h, fresh...)
		}
	}
}
