package assembly

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directory is a Container with an ordered, append-only list of children.
type Directory struct {
	node
	children []Writable
}

func NewDirectory(name string) *Directory {
	return &Directory{node: node{name: name}}
}

func (d *Directory) AddWritable(w Writable) {
	w.SetParent(d)
	d.children = append(d.children, w)
}

func (d *Directory) Writables() []Writable {
	return d.children
}

// Child returns the direct child with the given name.
func (d *Directory) Child(name string) (Writable, bool) {
	return findChild(d.children, name)
}

func (d *Directory) Prepare(stack IndexStack) error {
	return prepareAll(d.children, stack)
}

func (d *Directory) Write(dir string) error {
	return writeDirectory(dir, d.name, d.children)
}

func findChild(children []Writable, name string) (Writable, bool) {
	for _, c := range children {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

func prepareAll(children []Writable, stack IndexStack) error {
	for _, c := range children {
		if err := c.Prepare(stack); err != nil {
			return err
		}
	}
	return nil
}

func writeDirectory(dir, name string, children []Writable) error {
	target := filepath.Join(dir, name)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", target, err)
	}

	seen := make(map[string]struct{}, len(children))
	for _, c := range children {
		if _, dup := seen[c.Name()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateName, filepath.Join(target, c.Name()))
		}
		seen[c.Name()] = struct{}{}
	}

	for _, c := range children {
		if err := c.Write(target); err != nil {
			return err
		}
	}
	return nil
}

var _ Container = (*Directory)(nil)
