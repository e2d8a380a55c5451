// Package export encodes the binary payloads distributed to clients. The
// messages are laid out by hand with protowire so the field numbers below are
// the wire contract.
package export

import (
	"bytes"
	"slices"
	"strings"
)

const (
	DefaultFileHeader      = "EK Export v1"
	DefaultFileHeaderWidth = 16
)

type SignatureInfo struct {
	VerificationKeyVersion string
	VerificationKeyID      string
	SignatureAlgorithm     string
}

type TemporaryExposureKey struct {
	KeyData                    []byte
	TransmissionRiskLevel      int32
	RollingStartIntervalNumber int32
	RollingPeriod              int32
	ReportType                 int32
	DaysSinceOnsetOfSymptoms   int32
}

// TemporaryExposureKeyExport is the payload of a diagnosis key archive.
// Timestamps are seconds since epoch.
type TemporaryExposureKeyExport struct {
	StartTimestamp uint64
	EndTimestamp   uint64
	Region         string
	BatchNum       int32
	BatchSize      int32
	SignatureInfos []SignatureInfo
	Keys           []TemporaryExposureKey
}

type TEKSignature struct {
	SignatureInfo SignatureInfo
	BatchNum      int32
	BatchSize     int32
	Signature     []byte
}

type TEKSignatureList struct {
	Signatures []TEKSignature
}

type TraceTimeIntervalWarning struct {
	LocationIDHash        []byte
	StartIntervalNumber   int32
	Period                int32
	TransmissionRiskLevel int32
}

type CheckInProtectedReport struct {
	LocationIDHash         []byte
	IV                     []byte
	EncryptedCheckInRecord []byte
	MAC                    []byte
}

// TraceWarningPackage carries either v1 warnings or v2 reports for one hour.
type TraceWarningPackage struct {
	IntervalNumber          int32
	Region                  string
	TimeIntervalWarnings    []TraceTimeIntervalWarning
	CheckInProtectedReports []CheckInProtectedReport
}

// Header returns header right-padded with spaces to width bytes.
func Header(header string, width int) []byte {
	if pad := width - len(header); pad > 0 {
		header += strings.Repeat(" ", pad)
	}
	return []byte(header)
}

// SortKeys orders keys by key data, the order clients expect.
func SortKeys(keys []TemporaryExposureKey) {
	slices.SortStableFunc(keys, func(a, b TemporaryExposureKey) int {
		return bytes.Compare(a.KeyData, b.KeyData)
	})
}

// KeyExportFile returns the export payload: the padded header followed by the
// encoded export.
func KeyExportFile(header string, width int, export TemporaryExposureKeyExport) []byte {
	return append(Header(header, width), MarshalKeyExport(export)...)
}

// SplitKeyExportFile separates the header of an export payload from its body.
func SplitKeyExportFile(payload []byte, width int) (header string, export TemporaryExposureKeyExport, err error) {
	if len(payload) < width {
		return "", export, ErrShortPayload
	}
	export, err = UnmarshalKeyExport(payload[width:])
	return strings.TrimRight(string(payload[:width]), " "), export, err
}
