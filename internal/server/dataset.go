package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupName mirrors the host's historical naming: an ISO-8601 UTC timestamp
// with ':' and '.' replaced by '-'.
func backupName(t time.Time) string {
	return "backup-" + t.UTC().Format("2006-01-02T15-04-05-000Z") + ".csv"
}

// readDataset returns the current dataset, or nil when none exists yet.
func (s *Server) readDataset() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.cfg.Dir, DataFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// replaceDataset rotates the current file into the backups directory and
// writes payload in its place. It returns the backup file name, empty when
// there was nothing to rotate. Callers hold the write lock.
func (s *Server) replaceDataset(payload []byte) (string, error) {
	target := filepath.Join(s.cfg.Dir, DataFile)
	backupDir := filepath.Join(s.cfg.Dir, BackupDir)

	// Write the new content next to the target first so a failure leaves the
	// current dataset in place.
	tmp, err := os.CreateTemp(s.cfg.Dir, "."+DataFile+".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}

	var backup string
	if _, err := os.Stat(target); err == nil {
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			return "", err
		}
		backup = backupName(s.now())
		if err := os.Rename(target, filepath.Join(backupDir, backup)); err != nil {
			return "", fmt.Errorf("rotate backup: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return backup, err
	}

	if backup != "" {
		if err := pruneBackups(backupDir, MaxBackups); err != nil {
			s.cfg.Log.Warnf("Could not prune backups in %s: %v", backupDir, err)
		}
	}
	return backup, nil
}

// pruneBackups keeps the keep newest backup files by modification time.
func pruneBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type backupFile struct {
		name    string
		modTime time.Time
	}
	var files []backupFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "backup-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		files = append(files, backupFile{name: e.Name(), modTime: info.ModTime()})
	}
	if len(files) <= keep {
		return nil
	}

	// Newest first; names embed the timestamp and break mtime ties.
	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].name > files[j].name
	})
	for _, f := range files[keep:] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			return err
		}
	}
	return nil
}
