package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Submission timestamps of keys, warnings and reports are counted in hours
// since the UNIX epoch.

type DiagnosisKey struct {
	bun.BaseModel `bun:"table:exposure.diagnosis_keys,alias:dk"`

	KeyData                    []byte   `bun:"type:bytea,pk"`
	RollingStartIntervalNumber int32    `bun:",notnull"`
	RollingPeriod              int32    `bun:",notnull"`
	TransmissionRiskLevel      int32    `bun:",notnull"`
	SubmissionTimestamp        int64    `bun:",notnull"`
	ConsentToFederation        bool     `bun:",notnull,default:false"`
	OriginCountry              string   `bun:",notnull"`
	VisitedCountries           []string `bun:",array"`
	ReportType                 int32    `bun:",notnull"`
	DaysSinceOnsetOfSymptoms   int32    `bun:",notnull"`
}

// ExpiresAt is the end of the rolling period the key was active for.
// Interval numbers count ten minute steps since the epoch.
func (k DiagnosisKey) ExpiresAt() time.Time {
	return time.Unix((int64(k.RollingStartIntervalNumber)+int64(k.RollingPeriod))*600, 0).UTC()
}

// SubmittedAt is the first instant of the submission hour.
func (k DiagnosisKey) SubmittedAt() time.Time {
	return time.Unix(k.SubmissionTimestamp*3600, 0).UTC()
}

// TraceTimeIntervalWarning is the legacy v1 event warning.
type TraceTimeIntervalWarning struct {
	bun.BaseModel `bun:"table:exposure.trace_time_interval_warnings,alias:tw"`

	ID                    int64  `bun:",pk,autoincrement"`
	LocationIDHash        []byte `bun:"type:bytea,notnull"`
	StartIntervalNumber   int32  `bun:",notnull"`
	Period                int32  `bun:",notnull"`
	TransmissionRiskLevel int32  `bun:",notnull"`
	SubmissionTimestamp   int64  `bun:",notnull"`
}

// CheckInProtectedReport is the encrypted v2 event warning.
type CheckInProtectedReport struct {
	bun.BaseModel `bun:"table:exposure.check_in_protected_reports,alias:cr"`

	ID                     int64  `bun:",pk,autoincrement"`
	LocationIDHash         []byte `bun:"type:bytea,notnull"`
	IV                     []byte `bun:"type:bytea,notnull"`
	EncryptedCheckInRecord []byte `bun:"type:bytea,notnull"`
	MAC                    []byte `bun:"type:bytea"`
	SubmissionTimestamp    int64  `bun:",notnull"`
}

// StatisticsDownload records when a statistics file was fetched. DownloadedAt
// is in seconds since the epoch.
type StatisticsDownload struct {
	bun.BaseModel `bun:"table:exposure.statistics_downloads,alias:sd"`

	ID           int64  `bun:",pk,autoincrement"`
	DownloadedAt int64  `bun:",notnull"`
	ETag         string `bun:",nullzero"`
}
