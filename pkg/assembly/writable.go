// Package assembly builds the distributable file tree in two phases. Prepare
// computes the whole tree in memory from an IndexStack; Write persists it.
package assembly

import (
	"path"
)

// Writable is a node of the distribution tree.
type Writable interface {
	Name() string
	Parent() Container
	SetParent(Container)
	// Prepare builds the node and its children. It must not touch the disk and
	// must produce the same result when called again with the same stack.
	Prepare(stack IndexStack) error
	// Write persists the node inside dir, the on-disk path of its parent.
	Write(dir string) error
}

// Container is a Writable that holds children.
type Container interface {
	Writable
	AddWritable(w Writable)
	Writables() []Writable
}

type node struct {
	name   string
	parent Container
}

func (n *node) Name() string          { return n.name }
func (n *node) Parent() Container     { return n.parent }
func (n *node) SetParent(p Container) { n.parent = p }

// Path returns the slash separated path of w from the root of its tree.
func Path(w Writable) string {
	var parts []string
	for cur := Writable(w); cur != nil; {
		parts = append(parts, cur.Name())
		p := cur.Parent()
		if p == nil {
			break
		}
		cur = p
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return path.Join(parts...)
}
