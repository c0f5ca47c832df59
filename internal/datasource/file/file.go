// Package file reads the import input from the local filesystem.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Source is a fully loaded input file.
type Source struct {
	Path string
	Text string // UTF-8, byte-order mark removed
	Size int64  // raw size on disk
	Hash uint64 // xxh3 of the raw bytes
}

// HashHex renders Hash for logs.
func (s Source) HashHex() string { return fmt.Sprintf("%016x", s.Hash) }

// ReadAll loads path into memory and decodes it to UTF-8. A UTF-8 BOM is
// dropped; a UTF-16 BOM selects UTF-16 decoding. Without a BOM the bytes are
// taken as UTF-8, with invalid sequences replaced by U+FFFD.
//
// If ctx is already done, ReadAll returns its error without touching the
// filesystem. Filesystem errors wrap the path and keep errors.Is working.
func ReadAll(ctx context.Context, path string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Source{}, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()
	adviseSequential(f)

	raw, err := io.ReadAll(f)
	if err != nil {
		return Source{}, fmt.Errorf("read %s: %w", path, err)
	}
	text, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return Source{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Source{
		Path: path,
		Text: string(text),
		Size: int64(len(raw)),
		Hash: xxh3.Hash(raw),
	}, nil
}
