package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Filesystems where SQLite locking and flock(2) cannot be trusted.
var networkFSTypes = []string{"afpfs", "cifs", "nfs", "nfs4", "smb2", "smbfs", "webdav"}

// detectFS is swapped in tests.
var detectFS = detectFilesystemType

// NetworkFSError reports a path that resolves onto a network filesystem.
type NetworkFSError struct {
	Key    string
	Path   string
	FSType string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("%s %q is on network filesystem %q; point it at local disk", e.Key, e.Path, e.FSType)
}

// CheckLocal rejects a path on a network filesystem. The path need not exist
// yet; its nearest existing ancestor is inspected. key names the config
// setting the path came from and appears in the error.
func CheckLocal(path, key string) error {
	if path == "" {
		return fmt.Errorf("%s is empty", key)
	}
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	fsType, err := detectFS(dir)
	if err != nil {
		return fmt.Errorf("%s: detect filesystem for %q: %w", key, dir, err)
	}
	if isNetworkFS(fsType) {
		return &NetworkFSError{Key: key, Path: path, FSType: fsType}
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor of %q", path)
		}
		p = parent
	}
}

func isNetworkFS(fsType string) bool {
	return slices.Contains(networkFSTypes, strings.ToLower(strings.TrimSpace(fsType)))
}
