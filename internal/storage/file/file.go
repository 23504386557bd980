// Package file stores history as newline-delimited JSON and leaderboards
// as JSON arrays on the local filesystem. Every write goes to a temporary
// file in the target directory and is renamed over the destination.
package file

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	historyDir     = "history"
	leaderboardDir = "leaderboards"
	dirPerm        = 0o755
	filePerm       = 0o644
)

// escape makes a tag or symbol safe to use as a single path element.
// Dots are escaped too so that "." and ".." never name a directory and
// no escaped name starts with the temp-file prefix.
func escape(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), ".", "%2E")
}

func historyPath(root, tag, symbol string) string {
	return filepath.Join(root, historyDir, escape(tag), escape(symbol)+".ndjson")
}

func leaderboardPath(root, tag string) string {
	return filepath.Join(root, leaderboardDir, escape(tag)+".json")
}

// writeFileAtomic replaces path with data. Readers see either the old or
// the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
