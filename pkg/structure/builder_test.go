package structure

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/quatton/expodist/pkg/assembly"
	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/db/models"
	"github.com/quatton/expodist/pkg/export"
	"github.com/quatton/expodist/pkg/signing"
)

var asOf = time.Date(2021, 5, 5, 10, 30, 0, 0, time.UTC)

type stubKeys struct {
	asOf  buckets.Hour
	hours map[string]map[buckets.Hour][]models.DiagnosisKey
}

func (s *stubKeys) Packages() []string { return []string{"DE", "EUR"} }
func (s *stubKeys) AsOf() buckets.Hour { return s.asOf }

func (s *stubKeys) Dates(country string) []buckets.Date {
	var out []buckets.Date
	for h := range s.hours[country] {
		if !slices.Contains(out, h.Date()) {
			out = append(out, h.Date())
		}
	}
	slices.Sort(out)
	return out
}

func (s *stubKeys) HoursOn(country string, date buckets.Date) []buckets.Hour {
	var out []buckets.Hour
	for h := range s.hours[country] {
		if h.Date() == date {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}

func (s *stubKeys) RecordsForHour(country string, hour buckets.Hour) []models.DiagnosisKey {
	return s.hours[country][hour]
}

func (s *stubKeys) RecordsForDate(country string, date buckets.Date) []models.DiagnosisKey {
	var out []models.DiagnosisKey
	for _, h := range s.HoursOn(country, date) {
		out = append(out, s.hours[country][h]...)
	}
	return out
}

type stubRecords[R any] map[buckets.Hour][]R

func (s stubRecords[R]) Hours(string) []buckets.Hour {
	var out []buckets.Hour
	for h := range s {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

func (s stubRecords[R]) RecordsForHour(_ string, hour buckets.Hour) []R {
	return s[hour]
}

func key(b byte, hour buckets.Hour) models.DiagnosisKey {
	return models.DiagnosisKey{
		KeyData:                    []byte{b},
		RollingStartIntervalNumber: int32(hour) * 6,
		RollingPeriod:              144,
		TransmissionRiskLevel:      3,
		SubmissionTimestamp:        int64(hour),
	}
}

type fixture struct {
	now      buckets.Hour
	today    buckets.Date
	old      buckets.Hour
	recent   buckets.Hour
	current  buckets.Hour
	keys     *stubKeys
	warnings stubRecords[models.TraceTimeIntervalWarning]
	public   *ecdsa.PublicKey
	builder  *Builder
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{now: buckets.HourOf(asOf)}
	f.today = f.now.Date()
	f.old = f.today.AddDays(-3).FirstHour() + 5
	f.recent = f.today.AddDays(-1).FirstHour() + 7
	f.current = f.today.FirstHour() + 2

	f.keys = &stubKeys{asOf: f.now, hours: map[string]map[buckets.Hour][]models.DiagnosisKey{
		"DE": {
			f.old:     {key(3, f.old)},
			f.recent:  {key(2, f.recent), key(1, f.recent)},
			f.current: {key(4, f.current)},
		},
	}}
	f.warnings = stubRecords[models.TraceTimeIntervalWarning]{
		f.recent:  {{ID: 2, LocationIDHash: []byte("b"), Period: 6}, {ID: 1, LocationIDHash: []byte("a"), Period: 6}},
		f.current: nil,
	}

	pk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := signing.NewSigner(signing.StaticKeyProvider{Key: pk})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	f.public = signer.PublicKey()

	cfg := DefaultConfig()
	cfg.SignatureInfo = export.SignatureInfo{VerificationKeyVersion: "v1", VerificationKeyID: "262", SignatureAlgorithm: signing.Algorithm}
	if mutate != nil {
		mutate(&cfg)
	}
	f.builder = NewBuilder(cfg, signer, signing.SignatureListEncoder(cfg.SignatureInfo))
	return f
}

func (f *fixture) write(t *testing.T) map[string][]byte {
	t.Helper()
	root, err := f.builder.Build(f.keys, f.warnings, stubRecords[models.CheckInProtectedReport]{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := root.Prepare(assembly.IndexStack{}); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	out := t.TempDir()
	if err := root.Write(out); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	files := map[string][]byte{}
	err = filepath.WalkDir(out, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || assembly.IsChecksumFile(p) {
			return err
		}
		rel, _ := filepath.Rel(out, p)
		content, err := os.ReadFile(p)
		files[filepath.ToSlash(rel)] = content
		return err
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return files
}

func unzip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	entries := map[string][]byte{}
	for _, e := range zr.File {
		rc, err := e.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", e.Name, err)
		}
		entries[e.Name], _ = io.ReadAll(rc)
		rc.Close()
	}
	return entries
}

func (f *fixture) verifiedExport(t *testing.T, archive []byte) export.TemporaryExposureKeyExport {
	t.Helper()
	entries := unzip(t, archive)
	payload, sig := entries["export.bin"], entries["export.sig"]
	if payload == nil || sig == nil {
		t.Fatalf("Expected export.bin and export.sig, got %d entries", len(entries))
	}
	list, err := export.UnmarshalSignatureList(sig)
	if err != nil || len(list.Signatures) != 1 {
		t.Fatalf("Expected one signature, got %v (%v)", list, err)
	}
	if !signing.Verify(f.public, payload, list.Signatures[0].Signature) {
		t.Error("Expected signature to verify")
	}
	_, e, err := export.SplitKeyExportFile(payload, export.DefaultFileHeaderWidth)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	return e
}

func keyPath(country string, parts ...string) string {
	return filepath.ToSlash(filepath.Join(append([]string{"version", "v1", "diagnosis-keys", "country", country}, parts...)...))
}

func TestBuild_Layout(t *testing.T) {
	f := newFixture(t, nil)
	files := f.write(t)

	if got := string(files["version/index"]); got != `["v1","v2"]` {
		t.Errorf("Expected version index [\"v1\",\"v2\"], got %s", got)
	}
	if got := string(files["version/v1/diagnosis-keys/country/index"]); got != `["DE","EUR"]` {
		t.Errorf("Expected country index [\"DE\",\"EUR\"], got %s", got)
	}

	oldDate, recentDate, today := f.old.Date().String(), f.recent.Date().String(), f.today.String()

	var dates []string
	if err := json.Unmarshal(files[keyPath("DE", "date", "index")], &dates); err != nil {
		t.Fatalf("decode date index: %v", err)
	}
	if !slices.Equal(dates, []string{oldDate, recentDate}) {
		t.Errorf("Expected dates %v, got %v", []string{oldDate, recentDate}, dates)
	}

	if _, ok := files[keyPath("DE", "date", today, "index")]; ok {
		t.Error("Expected no archive for the incomplete current day")
	}
	for p := range files {
		if bytes.HasPrefix([]byte(p), []byte(keyPath("DE", "date", oldDate, "hour"))) {
			t.Errorf("Expected no hour folder beyond hour retention, found %s", p)
		}
	}

	if got := string(files[keyPath("DE", "date", recentDate, "hour", "index")]); got != "["+f.recent.String()+"]" {
		t.Errorf("Expected hour index [%d], got %s", f.recent, got)
	}
	if _, ok := files[keyPath("DE", "date", today, "hour", f.current.String(), "index")]; !ok {
		t.Error("Expected hour archive for the current day")
	}

	// EUR has no dates at all
	if got := string(files[keyPath("EUR", "date", "index")]); got != "[]" {
		t.Errorf("Expected empty EUR date index, got %s", got)
	}
}

func TestBuild_ArchivesAreSignedExports(t *testing.T) {
	f := newFixture(t, nil)
	files := f.write(t)

	hourly := f.verifiedExport(t, files[keyPath("DE", "date", f.recent.Date().String(), "hour", f.recent.String(), "index")])
	if hourly.Region != "DE" {
		t.Errorf("Expected region DE, got %s", hourly.Region)
	}
	if want := uint64(f.recent.Time().Unix()); hourly.StartTimestamp != want || hourly.EndTimestamp != want+3600 {
		t.Errorf("Expected hour window [%d,%d), got [%d,%d)", want, want+3600, hourly.StartTimestamp, hourly.EndTimestamp)
	}
	if len(hourly.Keys) != 2 || hourly.Keys[0].KeyData[0] != 1 {
		t.Errorf("Expected 2 keys sorted by key data, got %+v", hourly.Keys)
	}
	if len(hourly.SignatureInfos) != 1 || hourly.SignatureInfos[0].VerificationKeyID != "262" {
		t.Errorf("Unexpected signature infos %+v", hourly.SignatureInfos)
	}

	daily := f.verifiedExport(t, files[keyPath("DE", "date", f.old.Date().String(), "index")])
	if want := uint64(f.old.Date().Time().Unix()); daily.StartTimestamp != want || daily.EndTimestamp != want+86400 {
		t.Errorf("Expected day window starting %d, got [%d,%d)", want, daily.StartTimestamp, daily.EndTimestamp)
	}
	if len(daily.Keys) != 1 {
		t.Errorf("Expected 1 key in date archive, got %d", len(daily.Keys))
	}
}

func TestBuild_IncludeIncompleteDays(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.IncludeIncompleteDays = true })
	files := f.write(t)

	today := f.today.String()
	var dates []string
	json.Unmarshal(files[keyPath("DE", "date", "index")], &dates)
	if !slices.Contains(dates, today) {
		t.Errorf("Expected %s in date index, got %v", today, dates)
	}
	e := f.verifiedExport(t, files[keyPath("DE", "date", today, "index")])
	if len(e.Keys) != 1 {
		t.Errorf("Expected 1 key for today, got %d", len(e.Keys))
	}
}

func TestBuild_UnpublishedDayWithoutHourFolders(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.HourFileRetentionDays = 0 })
	files := f.write(t)

	todayDir := keyPath("DE", "date", f.today.String()) + "/"
	for p := range files {
		if strings.HasPrefix(p, todayDir) {
			t.Errorf("Expected nothing under the unpublished current day, found %s", p)
		}
	}
	if _, ok := files[keyPath("DE", "date", f.recent.Date().String(), "index")]; !ok {
		t.Error("Expected the previous day archive to be written")
	}
}

func TestBuild_TraceWarnings(t *testing.T) {
	f := newFixture(t, nil)
	files := f.write(t)

	base := "version/v1/twp/country/"
	if got := string(files[base+"index"]); got != `["DE"]` {
		t.Errorf("Expected twp country index [\"DE\"], got %s", got)
	}

	var r struct{ Oldest, Latest *buckets.Hour }
	if err := json.Unmarshal(files[base+"DE/hour/index"], &r); err != nil {
		t.Fatalf("decode hour index: %v", err)
	}
	if r.Oldest == nil || *r.Oldest != f.recent || r.Latest == nil || *r.Latest != f.current {
		t.Errorf("Expected range %d..%d, got %+v", f.recent, f.current, r)
	}

	if got, ok := files[base+"DE/hour/"+f.current.String()+"/index"]; !ok || len(got) != 0 {
		t.Errorf("Expected empty placeholder for an hour without warnings, got %q", got)
	}

	entries := unzip(t, files[base+"DE/hour/"+f.recent.String()+"/index"])
	p, err := export.UnmarshalTraceWarningPackage(entries["export.bin"])
	if err != nil {
		t.Fatalf("decode package: %v", err)
	}
	if p.IntervalNumber != int32(f.recent) || p.Region != "DE" {
		t.Errorf("Unexpected package header %+v", p)
	}
	if len(p.TimeIntervalWarnings) != 2 || string(p.TimeIntervalWarnings[0].LocationIDHash) != "a" {
		t.Errorf("Expected warnings ordered by id, got %+v", p.TimeIntervalWarnings)
	}
	if entries["export.sig"] == nil {
		t.Error("Expected trace warning archive to be signed")
	}

	if got := string(files["version/v2/twp/country/DE/hour/index"]); got != `{"oldest":null,"latest":null}` {
		t.Errorf("Expected empty v2 range, got %s", got)
	}
}

func TestBuild_PrepareIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	root, err := f.builder.Build(f.keys, f.warnings, stubRecords[models.CheckInProtectedReport]{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := root.Prepare(assembly.IndexStack{}); err != nil {
			t.Fatalf("Prepare %d failed: %v", i, err)
		}
	}
	out := t.TempDir()
	if err := root.Write(out); err != nil {
		t.Fatalf("Write after repeated Prepare failed: %v", err)
	}
}
