package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest returns the lowercase hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileDigest streams path through BLAKE3 and returns its hex digest.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestMismatchError reports a config file whose content changed.
type DigestMismatchError struct {
	File string
	Want string
	Got  string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("digest mismatch for %s: want %s, got %s", e.File, e.Want, e.Got)
}

// CheckDigest fails with *DigestMismatchError unless path hashes to want.
// want is compared case-insensitively.
func CheckDigest(path, want string) error {
	got, err := FileDigest(path)
	if err != nil {
		return err
	}
	want = strings.ToLower(strings.TrimSpace(want))
	if got != want {
		return &DigestMismatchError{File: filepath.Base(path), Want: want, Got: got}
	}
	return nil
}
