package export

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt32Field(b []byte, num protowire.Number, v int32) []byte {
	return appendVarintField(b, num, uint64(int64(v)))
}

func appendSint32Field(b []byte, num protowire.Number, v int32) []byte {
	return appendVarintField(b, num, protowire.EncodeZigZag(int64(v)))
}

func appendFixed64Field(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// field is the value at the head of buf. Accessors record how many bytes
// they consumed in n; a field nobody reads is skipped.
type field struct {
	num protowire.Number
	typ protowire.Type
	buf []byte
	n   int
	err error
}

func (f *field) expect(typ protowire.Type) bool {
	if f.typ != typ {
		f.err = fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformed, f.num, f.typ, typ)
		return false
	}
	return true
}

func (f *field) varint() uint64 {
	if !f.expect(protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(f.buf)
	f.n = n
	return v
}

func (f *field) int32() int32 { return int32(f.varint()) }

func (f *field) sint32() int32 { return int32(protowire.DecodeZigZag(f.varint())) }

func (f *field) fixed64() uint64 {
	if !f.expect(protowire.Fixed64Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed64(f.buf)
	f.n = n
	return v
}

func (f *field) bytes() []byte {
	if !f.expect(protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(f.buf)
	f.n = n
	return bytes.Clone(v)
}

func (f *field) string() string { return string(f.bytes()) }

func walk(b []byte, fn func(f *field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := &field{num: num, typ: typ, buf: b}
		if err := fn(f); err != nil {
			return err
		}
		if f.err != nil {
			return f.err
		}
		if f.n == 0 {
			f.n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if f.n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(f.n))
		}
		b = b[f.n:]
	}
	return nil
}

func marshalSignatureInfo(s SignatureInfo) []byte {
	var b []byte
	b = appendStringField(b, 3, s.VerificationKeyVersion)
	b = appendStringField(b, 4, s.VerificationKeyID)
	b = appendStringField(b, 5, s.SignatureAlgorithm)
	return b
}

func unmarshalSignatureInfo(b []byte) (SignatureInfo, error) {
	var s SignatureInfo
	err := walk(b, func(f *field) error {
		switch f.num {
		case 3:
			s.VerificationKeyVersion = f.string()
		case 4:
			s.VerificationKeyID = f.string()
		case 5:
			s.SignatureAlgorithm = f.string()
		}
		return nil
	})
	return s, err
}

func marshalKey(k TemporaryExposureKey) []byte {
	var b []byte
	b = appendBytesField(b, 1, k.KeyData)
	b = appendInt32Field(b, 2, k.TransmissionRiskLevel)
	b = appendInt32Field(b, 3, k.RollingStartIntervalNumber)
	b = appendInt32Field(b, 4, k.RollingPeriod)
	b = appendInt32Field(b, 5, k.ReportType)
	b = appendSint32Field(b, 6, k.DaysSinceOnsetOfSymptoms)
	return b
}

func unmarshalKey(b []byte) (TemporaryExposureKey, error) {
	var k TemporaryExposureKey
	err := walk(b, func(f *field) error {
		switch f.num {
		case 1:
			k.KeyData = f.bytes()
		case 2:
			k.TransmissionRiskLevel = f.int32()
		case 3:
			k.RollingStartIntervalNumber = f.int32()
		case 4:
			k.RollingPeriod = f.int32()
		case 5:
			k.ReportType = f.int32()
		case 6:
			k.DaysSinceOnsetOfSymptoms = f.sint32()
		}
		return nil
	})
	return k, err
}

// MarshalKeyExport encodes e without the file header. Keys are written in
// the order given; use SortKeys first.
func MarshalKeyExport(e TemporaryExposureKeyExport) []byte {
	var b []byte
	b = appendFixed64Field(b, 1, e.StartTimestamp)
	b = appendFixed64Field(b, 2, e.EndTimestamp)
	b = appendStringField(b, 3, e.Region)
	b = appendInt32Field(b, 4, e.BatchNum)
	b = appendInt32Field(b, 5, e.BatchSize)
	for _, s := range e.SignatureInfos {
		b = appendBytesField(b, 6, marshalSignatureInfo(s))
	}
	for _, k := range e.Keys {
		b = appendBytesField(b, 7, marshalKey(k))
	}
	return b
}

func UnmarshalKeyExport(b []byte) (TemporaryExposureKeyExport, error) {
	var e TemporaryExposureKeyExport
	err := walk(b, func(f *field) error {
		switch f.num {
		case 1:
			e.StartTimestamp = f.fixed64()
		case 2:
			e.EndTimestamp = f.fixed64()
		case 3:
			e.Region = f.string()
		case 4:
			e.BatchNum = f.int32()
		case 5:
			e.BatchSize = f.int32()
		case 6:
			s, err := unmarshalSignatureInfo(f.bytes())
			if err != nil {
				return err
			}
			e.SignatureInfos = append(e.SignatureInfos, s)
		case 7:
			k, err := unmarshalKey(f.bytes())
			if err != nil {
				return err
			}
			e.Keys = append(e.Keys, k)
		}
		return nil
	})
	return e, err
}

func MarshalSignatureList(l TEKSignatureList) []byte {
	var b []byte
	for _, s := range l.Signatures {
		var sig []byte
		sig = appendBytesField(sig, 1, marshalSignatureInfo(s.SignatureInfo))
		sig = appendInt32Field(sig, 2, s.BatchNum)
		sig = appendInt32Field(sig, 3, s.BatchSize)
		sig = appendBytesField(sig, 4, s.Signature)
		b = appendBytesField(b, 1, sig)
	}
	return b
}

func UnmarshalSignatureList(b []byte) (TEKSignatureList, error) {
	var l TEKSignatureList
	err := walk(b, func(f *field) error {
		if f.num != 1 {
			return nil
		}
		var s TEKSignature
		err := walk(f.bytes(), func(g *field) error {
			switch g.num {
			case 1:
				info, err := unmarshalSignatureInfo(g.bytes())
				if err != nil {
					return err
				}
				s.SignatureInfo = info
			case 2:
				s.BatchNum = g.int32()
			case 3:
				s.BatchSize = g.int32()
			case 4:
				s.Signature = g.bytes()
			}
			return nil
		})
		if err != nil {
			return err
		}
		l.Signatures = append(l.Signatures, s)
		return nil
	})
	return l, err
}

// MarshalTraceWarningPackage encodes p. Zero scalars and empty byte fields
// are omitted.
func MarshalTraceWarningPackage(p TraceWarningPackage) []byte {
	var b []byte
	if p.IntervalNumber != 0 {
		b = appendInt32Field(b, 1, p.IntervalNumber)
	}
	if p.Region != "" {
		b = appendStringField(b, 2, p.Region)
	}
	for _, w := range p.TimeIntervalWarnings {
		var m []byte
		if len(w.LocationIDHash) > 0 {
			m = appendBytesField(m, 1, w.LocationIDHash)
		}
		if w.StartIntervalNumber != 0 {
			m = appendInt32Field(m, 2, w.StartIntervalNumber)
		}
		if w.Period != 0 {
			m = appendInt32Field(m, 3, w.Period)
		}
		if w.TransmissionRiskLevel != 0 {
			m = appendInt32Field(m, 4, w.TransmissionRiskLevel)
		}
		b = appendBytesField(b, 3, m)
	}
	for _, r := range p.CheckInProtectedReports {
		var m []byte
		for i, v := range [][]byte{r.LocationIDHash, r.IV, r.EncryptedCheckInRecord, r.MAC} {
			if len(v) > 0 {
				m = appendBytesField(m, protowire.Number(i+1), v)
			}
		}
		b = appendBytesField(b, 4, m)
	}
	return b
}

func UnmarshalTraceWarningPackage(b []byte) (TraceWarningPackage, error) {
	var p TraceWarningPackage
	err := walk(b, func(f *field) error {
		switch f.num {
		case 1:
			p.IntervalNumber = f.int32()
		case 2:
			p.Region = f.string()
		case 3:
			var w TraceTimeIntervalWarning
			err := walk(f.bytes(), func(g *field) error {
				switch g.num {
				case 1:
					w.LocationIDHash = g.bytes()
				case 2:
					w.StartIntervalNumber = g.int32()
				case 3:
					w.Period = g.int32()
				case 4:
					w.TransmissionRiskLevel = g.int32()
				}
				return nil
			})
			if err != nil {
				return err
			}
			p.TimeIntervalWarnings = append(p.TimeIntervalWarnings, w)
		case 4:
			var r CheckInProtectedReport
			err := walk(f.bytes(), func(g *field) error {
				switch g.num {
				case 1:
					r.LocationIDHash = g.bytes()
				case 2:
					r.IV = g.bytes()
				case 3:
					r.EncryptedCheckInRecord = g.bytes()
				case 4:
					r.MAC = g.bytes()
				}
				return nil
			})
			if err != nil {
				return err
			}
			p.CheckInProtectedReports = append(p.CheckInProtectedReports, r)
		}
		return nil
	})
	return p, err
}
