package assembly

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"sort"

	"github.com/quatton/expodist/pkg/buckets"
)

// IndexContent renders the index file of a directory from its index values.
type IndexContent[T any] func(values []T, format Formatter[T]) ([]byte, error)

// IndexingDecorator adds an index file listing the index values of the
// wrapped directory. The file is rebuilt on every Prepare.
type IndexingDecorator[T any] struct {
	*IndexDirectory[T]
	content IndexContent[T]
	file    *File
}

// NewIndexingDecorator wraps dir. A nil content renders a sorted JSON array
// of the formatted names.
func NewIndexingDecorator[T any](dir *IndexDirectory[T], content IndexContent[T]) *IndexingDecorator[T] {
	if content == nil {
		content = NameIndex[T]
	}
	return &IndexingDecorator[T]{IndexDirectory: dir, content: content}
}

func (d *IndexingDecorator[T]) Prepare(stack IndexStack) error {
	if err := d.IndexDirectory.Prepare(stack); err != nil {
		return err
	}
	content, err := d.content(d.IndexValues(), d.format)
	if err != nil {
		return wrapPrepare(d, fmt.Errorf("render index: %w", err))
	}
	d.file = NewFile(IndexFileName, content)
	d.file.SetParent(d)
	return nil
}

func (d *IndexingDecorator[T]) Writables() []Writable {
	out := d.IndexDirectory.Writables()
	if d.file != nil {
		out = append(out, d.file)
	}
	return out
}

// IndexFile returns the index file built by the last Prepare.
func (d *IndexingDecorator[T]) IndexFile() *File {
	return d.file
}

func (d *IndexingDecorator[T]) Write(dir string) error {
	if err := d.IndexDirectory.Write(dir); err != nil {
		return err
	}
	if d.file == nil {
		return nil
	}
	return d.file.Write(filepath.Join(dir, d.Name()))
}

// NameIndex renders the formatted values as a sorted JSON string array.
func NameIndex[T any](values []T, format Formatter[T]) ([]byte, error) {
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, format(v))
	}
	sort.Strings(names)
	return json.Marshal(names)
}

// HourListIndex renders hour buckets as a sorted JSON number array.
func HourListIndex(values []buckets.Hour, _ Formatter[buckets.Hour]) ([]byte, error) {
	hours := slices.Clone(values)
	if hours == nil {
		hours = []buckets.Hour{}
	}
	slices.Sort(hours)
	return json.Marshal(hours)
}

type hourRange struct {
	Oldest *buckets.Hour `json:"oldest"`
	Latest *buckets.Hour `json:"latest"`
}

// HourRangeIndex renders the oldest and latest hour. Both are null when
// there are no hours.
func HourRangeIndex(values []buckets.Hour, _ Formatter[buckets.Hour]) ([]byte, error) {
	var r hourRange
	if len(values) > 0 {
		oldest, latest := slices.Min(values), slices.Max(values)
		r.Oldest, r.Latest = &oldest, &latest
	}
	return json.Marshal(r)
}

var _ Container = (*IndexingDecorator[string])(nil)
