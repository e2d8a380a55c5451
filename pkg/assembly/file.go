package assembly

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ChecksumSuffix is appended to a file name to form its checksum file.
const ChecksumSuffix = ".checksum"

// Checksum computes the cwa-hash of content: the md5 of the raw md5 digest,
// hex encoded. It matches the ETag S3 reports for a single-part multipart upload.
func Checksum(content []byte) string {
	inner := md5.Sum(content)
	outer := md5.Sum(inner[:])
	return hex.EncodeToString(outer[:])
}

// IsChecksumFile reports whether name is a checksum file.
func IsChecksumFile(name string) bool {
	return strings.HasSuffix(name, ChecksumSuffix)
}

// File is a named byte payload. Written files get a sibling checksum file.
type File struct {
	node
	content []byte
}

func NewFile(name string, content []byte) *File {
	return &File{node: node{name: name}, content: content}
}

func (f *File) Bytes() []byte { return f.content }

// SetBytes replaces the payload.
func (f *File) SetBytes(content []byte) { f.content = content }

func (f *File) Checksum() string { return Checksum(f.content) }

func (f *File) Prepare(IndexStack) error { return nil }

func (f *File) Write(dir string) error {
	return writeWithChecksum(dir, f.name, f.content, f.Checksum())
}

func writeWithChecksum(dir, name string, content []byte, checksum string) error {
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := os.WriteFile(target+ChecksumSuffix, []byte(checksum), 0o644); err != nil {
		return fmt.Errorf("write checksum for %s: %w", target, err)
	}
	return nil
}

var _ Writable = (*File)(nil)
