// Package structure lays out the distribution tree served to clients:
//
//	version/index
//	version/v1/diagnosis-keys/country/<country>/date/<date>/index
//	version/v1/diagnosis-keys/country/<country>/date/<date>/hour/<hour>/index
//	version/v1/twp/country/<country>/hour/<hour>/index
//	version/v2/twp/country/<country>/hour/<hour>/index
//
// Every "index" below a date or hour is a signed archive. Every other
// "index" is a JSON listing of the sibling directories.
package structure

import (
	"cmp"
	"slices"

	"github.com/quatton/expodist/pkg/assembly"
	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/db/models"
	"github.com/quatton/expodist/pkg/export"
)

const (
	RootName          = "version"
	DiagnosisKeysName = "diagnosis-keys"
	TraceWarningsName = "twp"
	CountryName       = "country"
	DateName          = "date"
	HourName          = "hour"
	VersionV1         = "v1"
	VersionV2         = "v2"
)

const hourSeconds uint64 = 3600

// KeySource is a bundled set of diagnosis keys.
type KeySource interface {
	Packages() []string
	AsOf() buckets.Hour
	Dates(country string) []buckets.Date
	HoursOn(country string, date buckets.Date) []buckets.Hour
	RecordsForHour(country string, hour buckets.Hour) []models.DiagnosisKey
	RecordsForDate(country string, date buckets.Date) []models.DiagnosisKey
}

// RecordSource is a bundled set of trace warnings or check-in reports.
type RecordSource[R any] interface {
	Hours(country string) []buckets.Hour
	RecordsForHour(country string, hour buckets.Hour) []R
}

// Builder creates the distribution tree from bundled records.
type Builder struct {
	cfg    Config
	signer assembly.Signer
	encode assembly.SignatureEncoder
}

// NewBuilder returns a builder signing archives with signer. The raw
// signature is stored as produced by encode.
func NewBuilder(cfg Config, signer assembly.Signer, encode assembly.SignatureEncoder) *Builder {
	return &Builder{cfg: cfg, signer: signer, encode: encode}
}

// Build returns the unprepared root directory.
func (b *Builder) Build(
	keys KeySource,
	warnings RecordSource[models.TraceTimeIntervalWarning],
	reports RecordSource[models.CheckInProtectedReport],
) (*assembly.Directory, error) {
	versions, err := assembly.NameIndex([]string{VersionV1, VersionV2}, func(s string) string { return s })
	if err != nil {
		return nil, err
	}

	name := b.cfg.RootName
	if name == "" {
		name = RootName
	}
	root := assembly.NewDirectory(name)
	root.AddWritable(assembly.NewFile(assembly.IndexFileName, versions))

	v1 := assembly.NewDirectory(VersionV1)
	dk := assembly.NewDirectory(DiagnosisKeysName)
	dk.AddWritable(b.diagnosisKeys(keys))
	v1.AddWritable(dk)

	twp1 := assembly.NewDirectory(TraceWarningsName)
	twp1.AddWritable(traceWarnings(b, warnings, warningPackage))
	v1.AddWritable(twp1)
	root.AddWritable(v1)

	v2 := assembly.NewDirectory(VersionV2)
	twp2 := assembly.NewDirectory(TraceWarningsName)
	twp2.AddWritable(traceWarnings(b, reports, reportPackage))
	v2.AddWritable(twp2)
	root.AddWritable(v2)

	return root, nil
}

func (b *Builder) diagnosisKeys(keys KeySource) assembly.Writable {
	packages := keys.Packages()
	countries := assembly.NewCountryDirectory(CountryName, func(assembly.IndexStack) []string {
		return packages
	})

	today := keys.AsOf().Date()
	hourCutoff := today.AddDays(-b.cfg.HourFileRetentionDays)
	published := func(d buckets.Date) bool {
		return b.cfg.IncludeIncompleteDays || d != today
	}

	countries.AddFactory(func(stack assembly.IndexStack) (assembly.Writable, bool, error) {
		country, _ := stack.PeekCountry()

		// a date without archive and hour folder would only hold a placeholder
		dates := assembly.NewDateDirectory(DateName, func(assembly.IndexStack) []buckets.Date {
			return slices.DeleteFunc(slices.Clone(keys.Dates(country)), func(d buckets.Date) bool {
				return !published(d) && d <= hourCutoff
			})
		})
		dates.AddFactory(func(stack assembly.IndexStack) (assembly.Writable, bool, error) {
			date, _ := stack.PeekDate()
			if !published(date) {
				return nil, false, nil
			}
			start := uint64(date.Time().Unix())
			return b.keyArchive(country, start, start+24*hourSeconds, keys.RecordsForDate(country, date)), true, nil
		})
		dates.AddFactory(func(stack assembly.IndexStack) (assembly.Writable, bool, error) {
			date, _ := stack.PeekDate()
			if date <= hourCutoff {
				return nil, false, nil
			}
			return b.hourDirectory(keys, country, date), true, nil
		})

		// the date listing only names dates whose archive exists
		listing := func(values []buckets.Date, format assembly.Formatter[buckets.Date]) ([]byte, error) {
			return assembly.NameIndex(slices.DeleteFunc(slices.Clone(values), func(d buckets.Date) bool {
				return !published(d)
			}), format)
		}
		return assembly.NewIndexingDecorator(dates, listing), true, nil
	})

	return assembly.NewIndexingDecorator(countries, nil)
}

func (b *Builder) hourDirectory(keys KeySource, country string, date buckets.Date) assembly.Writable {
	hours := assembly.NewHourDirectory(HourName, func(assembly.IndexStack) []buckets.Hour {
		return keys.HoursOn(country, date)
	})
	hours.AddFactory(func(stack assembly.IndexStack) (assembly.Writable, bool, error) {
		hour, _ := stack.PeekHour()
		start := uint64(hour.Time().Unix())
		return b.keyArchive(country, start, start+hourSeconds, keys.RecordsForHour(country, hour)), true, nil
	})
	return assembly.NewIndexingDecorator(hours, assembly.HourListIndex)
}

func (b *Builder) keyArchive(country string, start, end uint64, records []models.DiagnosisKey) assembly.Writable {
	keys := make([]export.TemporaryExposureKey, 0, len(records))
	for _, k := range records {
		keys = append(keys, export.TemporaryExposureKey{
			KeyData:                    k.KeyData,
			TransmissionRiskLevel:      k.TransmissionRiskLevel,
			RollingStartIntervalNumber: k.RollingStartIntervalNumber,
			RollingPeriod:              k.RollingPeriod,
			ReportType:                 k.ReportType,
			DaysSinceOnsetOfSymptoms:   k.DaysSinceOnsetOfSymptoms,
		})
	}
	export.SortKeys(keys)

	payload := export.KeyExportFile(b.cfg.FileHeader, b.cfg.FileHeaderWidth, export.TemporaryExposureKeyExport{
		StartTimestamp: start,
		EndTimestamp:   end,
		Region:         country,
		BatchNum:       1,
		BatchSize:      1,
		SignatureInfos: []export.SignatureInfo{b.cfg.SignatureInfo},
		Keys:           keys,
	})
	return b.signedArchive(payload)
}

func (b *Builder) signedArchive(payload []byte) assembly.Writable {
	archive := assembly.NewArchive(b.cfg.ArchiveName)
	archive.PutFile(assembly.NewFile(b.cfg.PayloadName, payload))

	signed := assembly.NewSigningDecorator(archive, b.signer, b.encode)
	signed.PayloadName = b.cfg.PayloadName
	signed.SignatureName = b.cfg.SignatureName
	return signed
}

// traceWarnings builds country/<country>/hour/<hour>. Hours without records
// get an empty placeholder instead of an archive.
func traceWarnings[R any](b *Builder, source RecordSource[R], pack func(string, buckets.Hour, []R) export.TraceWarningPackage) assembly.Writable {
	countries := assembly.NewCountryDirectory(CountryName, func(assembly.IndexStack) []string {
		return b.cfg.TraceWarningCountries
	})
	countries.AddFactory(func(stack assembly.IndexStack) (assembly.Writable, bool, error) {
		country, _ := stack.PeekCountry()
		hours := assembly.NewHourDirectory(HourName, func(assembly.IndexStack) []buckets.Hour {
			return source.Hours(country)
		})
		hours.AddFactory(func(stack assembly.IndexStack) (assembly.Writable, bool, error) {
			hour, _ := stack.PeekHour()
			records := source.RecordsForHour(country, hour)
			if len(records) == 0 {
				return nil, false, nil
			}
			return b.signedArchive(export.MarshalTraceWarningPackage(pack(country, hour, records))), true, nil
		})
		return assembly.NewIndexingDecorator(hours, assembly.HourRangeIndex), true, nil
	})
	return assembly.NewIndexingDecorator(countries, nil)
}

func warningPackage(country string, hour buckets.Hour, records []models.TraceTimeIntervalWarning) export.TraceWarningPackage {
	records = slices.SortedFunc(slices.Values(records), func(a, b models.TraceTimeIntervalWarning) int {
		return cmp.Compare(a.ID, b.ID)
	})
	p := export.TraceWarningPackage{IntervalNumber: int32(hour), Region: country}
	for _, w := range records {
		p.TimeIntervalWarnings = append(p.TimeIntervalWarnings, export.TraceTimeIntervalWarning{
			LocationIDHash:        w.LocationIDHash,
			StartIntervalNumber:   w.StartIntervalNumber,
			Period:                w.Period,
			TransmissionRiskLevel: w.TransmissionRiskLevel,
		})
	}
	return p
}

func reportPackage(country string, hour buckets.Hour, records []models.CheckInProtectedReport) export.TraceWarningPackage {
	records = slices.SortedFunc(slices.Values(records), func(a, b models.CheckInProtectedReport) int {
		return cmp.Compare(a.ID, b.ID)
	})
	p := export.TraceWarningPackage{IntervalNumber: int32(hour), Region: country}
	for _, r := range records {
		p.CheckInProtectedReports = append(p.CheckInProtectedReports, export.CheckInProtectedReport{
			LocationIDHash:         r.LocationIDHash,
			IV:                     r.IV,
			EncryptedCheckInRecord: r.EncryptedCheckInRecord,
			MAC:                    r.MAC,
		})
	}
	return p
}
