package cas

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/modforge/loadout/pkg/types"
)

// HashLength is the length of a hex-encoded content hash.
const HashLength = 64

// HashBytes returns the hex-encoded BLAKE3 hash of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader returns the hex-encoded BLAKE3 hash of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex-encoded BLAKE3 hash of the file at path.
func HashFile(fsys types.FS, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return HashReader(f)
}

// ValidHash reports whether s looks like a hex-encoded content hash.
func ValidHash(s string) bool {
	if len(s) != HashLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// checkHash validates a caller-supplied hash string.
func checkHash(hash string) error {
	if !ValidHash(hash) {
		return fmt.Errorf("malformed content hash %q", hash)
	}
	return nil
}
