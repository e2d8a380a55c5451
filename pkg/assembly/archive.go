package assembly

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zip"
)

// Archive is a zip container whose entries are files. Entry timestamps are
// left unset so identical entries always produce identical archive bytes.
type Archive struct {
	node
	entries []*File
	err     error
}

func NewArchive(name string) *Archive {
	return &Archive{node: node{name: name}}
}

// AddWritable appends an entry. Anything other than a *File makes the next
// Prepare fail with ErrNotAFile.
func (a *Archive) AddWritable(w Writable) {
	f, ok := w.(*File)
	if !ok {
		a.err = fmt.Errorf("%w: %s", ErrNotAFile, w.Name())
		return
	}
	a.PutFile(f)
}

// PutFile adds f, replacing an existing entry with the same name in place.
func (a *Archive) PutFile(f *File) {
	f.SetParent(a)
	for i, e := range a.entries {
		if e.Name() == f.Name() {
			a.entries[i] = f
			return
		}
	}
	a.entries = append(a.entries, f)
}

func (a *Archive) Writables() []Writable {
	out := make([]Writable, len(a.entries))
	for i, e := range a.entries {
		out[i] = e
	}
	return out
}

func (a *Archive) Entries() []*File {
	return a.entries
}

func (a *Archive) Entry(name string) (*File, bool) {
	for _, e := range a.entries {
		if e.Name() == name {
			return e, true
		}
	}
	return nil, false
}

func (a *Archive) Prepare(IndexStack) error {
	return a.err
}

// Checksum is computed over the first entry, so the hash only changes when
// the payload does.
func (a *Archive) Checksum() string {
	if len(a.entries) == 0 {
		return Checksum(nil)
	}
	return a.entries[0].Checksum()
}

// Bytes returns the zipped entries in insertion order.
func (a *Archive) Bytes() ([]byte, error) {
	if len(a.entries) == 0 {
		return nil, ErrEmptyArchive
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range a.entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.Name(),
			Method: zip.Deflate,
		})
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", e.Name(), err)
		}
		if _, err := w.Write(e.Bytes()); err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", e.Name(), err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip %s: %w", a.name, err)
	}
	return buf.Bytes(), nil
}

func (a *Archive) Write(dir string) error {
	content, err := a.Bytes()
	if err != nil {
		return fmt.Errorf("write archive %s: %w", Path(a), err)
	}
	return writeWithChecksum(dir, a.name, content, a.Checksum())
}

var _ Container = (*Archive)(nil)
