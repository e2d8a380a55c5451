package assembly

import (
	"github.com/quatton/expodist/pkg/buckets"
)

// IndexFileName is the name of index listings and of empty placeholders.
const IndexFileName = "index"

// IndexFunc lists the index values of a directory for the given stack. It
// must depend only on the stack and on state that does not change during a run.
type IndexFunc[T any] func(stack IndexStack) []T

// Formatter turns an index value into a directory name.
type Formatter[T any] func(T) string

// WritableFactory produces a child for every index subdirectory. Returning
// false skips the subdirectory.
type WritableFactory func(stack IndexStack) (Writable, bool, error)

// IndexDirectory creates one subdirectory per index value and fills it with
// the output of its factories.
type IndexDirectory[T any] struct {
	node
	index     IndexFunc[T]
	format    Formatter[T]
	wrap      func(T) Index
	factories []WritableFactory

	static    []Writable
	generated []Writable
	values    []T
}

func NewIndexDirectory[T any](name string, index IndexFunc[T], wrap func(T) Index, format Formatter[T]) *IndexDirectory[T] {
	return &IndexDirectory[T]{
		node:   node{name: name},
		index:  index,
		wrap:   wrap,
		format: format,
	}
}

func NewCountryDirectory(name string, index IndexFunc[string]) *IndexDirectory[string] {
	return NewIndexDirectory(name, index, CountryIndex, func(c string) string { return c })
}

func NewDateDirectory(name string, index IndexFunc[buckets.Date]) *IndexDirectory[buckets.Date] {
	return NewIndexDirectory(name, index, DateIndex, buckets.FormatDate)
}

func NewHourDirectory(name string, index IndexFunc[buckets.Hour]) *IndexDirectory[buckets.Hour] {
	return NewIndexDirectory(name, index, HourIndex, buckets.FormatHour)
}

// AddFactory registers a factory invoked once per index value.
func (d *IndexDirectory[T]) AddFactory(f WritableFactory) {
	d.factories = append(d.factories, f)
}

// AddWritable adds a static child that is not repeated per index value.
func (d *IndexDirectory[T]) AddWritable(w Writable) {
	w.SetParent(d)
	d.static = append(d.static, w)
}

func (d *IndexDirectory[T]) Writables() []Writable {
	out := make([]Writable, 0, len(d.generated)+len(d.static))
	out = append(out, d.generated...)
	return append(out, d.static...)
}

// IndexValues returns the values computed by the last Prepare.
func (d *IndexDirectory[T]) IndexValues() []T {
	return d.values
}

func (d *IndexDirectory[T]) Format(v T) string {
	return d.format(v)
}

func (d *IndexDirectory[T]) Prepare(stack IndexStack) error {
	d.generated = nil
	d.values = d.index(stack)

	for _, v := range d.values {
		sub := NewDirectory(d.format(v))
		sub.SetParent(d)
		d.generated = append(d.generated, sub)

		next := stack.Push(d.wrap(v))
		produced := 0
		for _, factory := range d.factories {
			w, ok, err := factory(next)
			if err != nil {
				return wrapPrepare(sub, err)
			}
			if !ok {
				continue
			}
			sub.AddWritable(w)
			if err := w.Prepare(next); err != nil {
				return wrapPrepare(w, err)
			}
			produced++
		}

		if produced == 0 {
			sub.AddWritable(NewFile(IndexFileName, []byte{}))
		}
	}

	for _, w := range d.static {
		if err := w.Prepare(stack); err != nil {
			return wrapPrepare(w, err)
		}
	}
	return nil
}

func (d *IndexDirectory[T]) Write(dir string) error {
	return writeDirectory(dir, d.name, d.Writables())
}

var _ Container = (*IndexDirectory[string])(nil)
