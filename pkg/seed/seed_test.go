package seed

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/quatton/expodist/pkg/buckets"
)

var now = time.Date(2021, 5, 5, 10, 30, 0, 0, time.UTC)

func testConfig() Config {
	return Config{Seed: 42, ExposuresPerHour: 3, RetentionDays: 2, SupportedCountries: []string{"DE", "FR"}}
}

func TestGenerate_CoversRetentionWindow(t *testing.T) {
	keys := NewGenerator(testConfig()).Generate(context.Background(), "DE", 0, false, now)
	if len(keys) == 0 {
		t.Fatal("Expected generated keys")
	}

	first := buckets.DateOf(now).AddDays(-2).FirstHour()
	last := buckets.HourOf(now)
	for _, k := range keys {
		h := buckets.Hour(k.SubmissionTimestamp)
		if h < first || h > last {
			t.Errorf("Expected submission within [%d,%d], got %d", first, last, h)
		}
		if len(k.KeyData) != keyLength {
			t.Errorf("Expected %d byte key, got %d", keyLength, len(k.KeyData))
		}
		if k.OriginCountry != "DE" || len(k.VisitedCountries) == 0 {
			t.Errorf("Unexpected countries %s %v", k.OriginCountry, k.VisitedCountries)
		}
		if k.TransmissionRiskLevel < lowestRiskLevel || k.TransmissionRiskLevel > highestRiskLevel {
			t.Errorf("Risk level out of range: %d", k.TransmissionRiskLevel)
		}
		if k.ExpiresAt().After(now.Add(24 * time.Hour)) {
			t.Errorf("Key rolling period ends after its submission day: %v", k.ExpiresAt())
		}
	}
}

func TestGenerate_IsDeterministic(t *testing.T) {
	a := NewGenerator(testConfig()).Generate(context.Background(), "DE", 0, false, now)
	b := NewGenerator(testConfig()).Generate(context.Background(), "DE", 0, false, now)
	if len(a) != len(b) {
		t.Fatalf("Expected identical output, got %d and %d keys", len(a), len(b))
	}
	for i := range a {
		if !bytes.Equal(a[i].KeyData, b[i].KeyData) {
			t.Fatalf("Key %d differs between runs", i)
		}
	}
}

func TestGenerate_ResumesAfterLatest(t *testing.T) {
	g := NewGenerator(testConfig())
	current := buckets.HourOf(now)

	if keys := g.Generate(context.Background(), "DE", current, true, now); keys != nil {
		t.Errorf("Expected nothing when up to date, got %d keys", len(keys))
	}

	keys := g.Generate(context.Background(), "DE", current-2, true, now)
	for _, k := range keys {
		if buckets.Hour(k.SubmissionTimestamp) <= current-2 {
			t.Errorf("Expected only hours after the latest submission, got %d", k.SubmissionTimestamp)
		}
	}
}
