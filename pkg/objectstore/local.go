package objectstore

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/quatton/expodist/pkg/assembly"
)

// LocalFile is a file of the written distribution tree, ready to publish.
type LocalFile struct {
	Path string
	Key  string
	Hash string
}

// IsKeyFile reports whether the file is a key archive rather than a listing.
// Archives live in date or hour folders, so their keys end in a digit.
func (f LocalFile) IsKeyFile() bool {
	return IsKeyFile(f.Key)
}

func (f LocalFile) ContentType() string {
	if f.IsKeyFile() {
		return "application/zip"
	}
	return "application/json"
}

func IsKeyFile(key string) bool {
	if key == "" {
		return false
	}
	r := rune(key[len(key)-1])
	return unicode.IsDigit(r)
}

// ObjectKey maps a path relative to the output directory to its object key.
// Index files are published under their folder's key.
func ObjectKey(rel string) string {
	key := filepath.ToSlash(rel)
	if key == assembly.IndexFileName {
		return ""
	}
	return strings.TrimSuffix(key, "/"+assembly.IndexFileName)
}

// ScanLocal lists the publishable files below root. Checksum files are not
// published themselves; their content becomes the hash of their sibling.
func ScanLocal(root string) ([]LocalFile, error) {
	var files []LocalFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || assembly.IsChecksumFile(path) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := ObjectKey(rel)
		if key == "" {
			return nil
		}

		hash, err := os.ReadFile(path + assembly.ChecksumSuffix)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		files = append(files, LocalFile{Path: path, Key: key, Hash: string(bytes.TrimSpace(hash))})
		return nil
	})
	return files, err
}
