package assembly

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyArchive is returned when an archive without entries is signed or written.
	ErrEmptyArchive = errors.New("assembly: archive has no entries")

	// ErrNotAFile is returned when something other than a *File is added to an archive.
	ErrNotAFile = errors.New("assembly: archive entries must be files")

	// ErrDuplicateName is returned when two children of a directory share a name.
	ErrDuplicateName = errors.New("assembly: duplicate name")
)

// PrepareError records the tree path at which Prepare failed. Only the
// innermost failure is wrapped; outer directories pass it through unchanged.
type PrepareError struct {
	Path string
	Err  error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %s: %v", e.Path, e.Err)
}

func (e *PrepareError) Unwrap() error { return e.Err }

func wrapPrepare(w Writable, err error) error {
	if err == nil {
		return nil
	}
	var pe *PrepareError
	if errors.As(err, &pe) {
		return err
	}
	return &PrepareError{Path: Path(w), Err: err}
}
