package assembly

import (
	"fmt"

	"github.com/quatton/expodist/pkg/buckets"
)

// IndexKind identifies which variant an Index holds.
type IndexKind int

const (
	KindCountry IndexKind = iota
	KindDate
	KindHour
)

func (k IndexKind) String() string {
	switch k {
	case KindCountry:
		return "country"
	case KindDate:
		return "date"
	case KindHour:
		return "hour"
	default:
		return fmt.Sprintf("IndexKind(%d)", int(k))
	}
}

// Index is a single frame of an IndexStack. It holds exactly one of a
// country code, a date bucket or an hour bucket.
type Index struct {
	kind    IndexKind
	country string
	date    buckets.Date
	hour    buckets.Hour
}

func CountryIndex(country string) Index { return Index{kind: KindCountry, country: country} }
func DateIndex(date buckets.Date) Index { return Index{kind: KindDate, date: date} }
func HourIndex(hour buckets.Hour) Index { return Index{kind: KindHour, hour: hour} }

func (i Index) Kind() IndexKind { return i.kind }

func (i Index) Country() (string, bool) { return i.country, i.kind == KindCountry }

func (i Index) Date() (buckets.Date, bool) { return i.date, i.kind == KindDate }

func (i Index) Hour() (buckets.Hour, bool) { return i.hour, i.kind == KindHour }

func (i Index) String() string {
	switch i.kind {
	case KindCountry:
		return i.country
	case KindDate:
		return i.date.String()
	default:
		return i.hour.String()
	}
}

type frame struct {
	value Index
	next  *frame
}

// IndexStack is an immutable stack of Index values. Push returns a new stack
// that shares its tail with the receiver, so sibling subtrees never see each
// other's frames. The zero value is an empty stack.
type IndexStack struct {
	top  *frame
	size int
}

func (s IndexStack) Push(i Index) IndexStack {
	return IndexStack{top: &frame{value: i, next: s.top}, size: s.size + 1}
}

func (s IndexStack) Peek() (Index, bool) {
	if s.top == nil {
		return Index{}, false
	}
	return s.top.value, true
}

// Pop returns the stack without its top frame. Popping an empty stack
// returns an empty stack.
func (s IndexStack) Pop() IndexStack {
	if s.top == nil {
		return s
	}
	return IndexStack{top: s.top.next, size: s.size - 1}
}

func (s IndexStack) Len() int { return s.size }

// At returns the frame depth levels below the top.
func (s IndexStack) At(depth int) (Index, bool) {
	f := s.top
	for ; f != nil && depth > 0; depth-- {
		f = f.next
	}
	if f == nil || depth < 0 {
		return Index{}, false
	}
	return f.value, true
}

// Nearest returns the top-most frame of the given kind.
func (s IndexStack) Nearest(kind IndexKind) (Index, bool) {
	for f := s.top; f != nil; f = f.next {
		if f.value.kind == kind {
			return f.value, true
		}
	}
	return Index{}, false
}

func (s IndexStack) PeekCountry() (string, bool) {
	i, ok := s.Peek()
	if !ok {
		return "", false
	}
	return i.Country()
}

func (s IndexStack) PeekDate() (buckets.Date, bool) {
	i, ok := s.Peek()
	if !ok {
		return 0, false
	}
	return i.Date()
}

func (s IndexStack) PeekHour() (buckets.Hour, bool) {
	i, ok := s.Peek()
	if !ok {
		return 0, false
	}
	return i.Hour()
}

// Country returns the nearest country frame.
func (s IndexStack) Country() (string, bool) {
	i, ok := s.Nearest(KindCountry)
	if !ok {
		return "", false
	}
	return i.country, true
}

// Date returns the nearest date frame.
func (s IndexStack) Date() (buckets.Date, bool) {
	i, ok := s.Nearest(KindDate)
	if !ok {
		return 0, false
	}
	return i.date, true
}

// Hour returns the nearest hour frame.
func (s IndexStack) Hour() (buckets.Hour, bool) {
	i, ok := s.Nearest(KindHour)
	if !ok {
		return 0, false
	}
	return i.hour, true
}

// Values returns the frames bottom-up.
func (s IndexStack) Values() []Index {
	out := make([]Index, s.size)
	i := s.size - 1
	for f := s.top; f != nil; f = f.next {
		out[i] = f.value
		i--
	}
	return out
}
