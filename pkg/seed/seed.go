// Package seed generates synthetic diagnosis keys for test environments.
package seed

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/db/models"
	"github.com/quatton/expodist/pkg/dlog"
)

const (
	keyLength           = 16
	intervalsPerDay     = 144
	lowestRiskLevel     = 1
	highestRiskLevel    = 8
	reportTypeConfirmed = 1
)

// Config controls the generated volume and shape.
type Config struct {
	Seed                uint64
	ExposuresPerHour    float64
	RetentionDays       int
	SupportedCountries  []string
	ConsentToFederation bool
}

// Generator produces keys per country for every hour after the latest
// existing submission up to the current hour.
type Generator struct {
	cfg Config
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate returns new keys for country. latest is the newest existing
// submission hour of that country; when ok is false generation starts at
// the beginning of the retention window. The same inputs always produce the
// same keys.
func (g *Generator) Generate(ctx context.Context, country string, latest buckets.Hour, ok bool, now time.Time) []models.DiagnosisKey {
	start := buckets.DateOf(now).AddDays(-g.cfg.RetentionDays).FirstHour()
	if ok {
		start = latest + 1
	}
	end := buckets.HourOf(now)

	logger := dlog.FromContext(ctx).With("country", country)
	if start > end {
		logger.Debug("Skipping test data generation, keys are up to date")
		return nil
	}

	rng := rand.New(rand.NewPCG(g.cfg.Seed, uint64(start)^countryHash(country)))
	poisson := distuv.Poisson{Lambda: g.cfg.ExposuresPerHour, Src: rng}

	var keys []models.DiagnosisKey
	for hour := start; hour <= end; hour++ {
		n := int(poisson.Rand())
		for range n {
			keys = append(keys, g.key(rng, hour, country))
		}
	}
	logger.Debug("Generated diagnosis keys", "from", start, "to", end, "keys", len(keys))
	return keys
}

func (g *Generator) key(rng *rand.Rand, hour buckets.Hour, country string) models.DiagnosisKey {
	data := make([]byte, keyLength)
	for i := range data {
		data[i] = byte(rng.UintN(256))
	}

	visited := []string{country}
	if rng.IntN(2) == 0 {
		visited = append([]string(nil), g.cfg.SupportedCountries...)
	}

	daysBack := rng.IntN(g.cfg.RetentionDays + 1)
	rollingStart := int32(hour.Date().AddDays(-daysBack).FirstHour()) * 6

	return models.DiagnosisKey{
		KeyData:                    data,
		RollingStartIntervalNumber: rollingStart,
		RollingPeriod:              intervalsPerDay,
		TransmissionRiskLevel:      int32(lowestRiskLevel + rng.IntN(highestRiskLevel-lowestRiskLevel+1)),
		SubmissionTimestamp:        int64(hour),
		ConsentToFederation:        g.cfg.ConsentToFederation,
		OriginCountry:              country,
		VisitedCountries:           visited,
		ReportType:                 reportTypeConfirmed,
	}
}

func countryHash(country string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(country))
	return h.Sum64()
}
