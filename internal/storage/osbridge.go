package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// OSBridge implements Bridge and BackupBridge on the local filesystem. Relative names
// resolve under Dir; backups live in Dir/backups.
type OSBridge struct {
	Dir      string
	DataFile string
	Now      func() time.Time
}

func NewOSBridge(dir string) *OSBridge {
	return &OSBridge{Dir: dir, DataFile: DataFileName, Now: time.Now}
}

func (b *OSBridge) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(b.Dir, name)
}

func (b *OSBridge) backupDir() string {
	return filepath.Join(b.Dir, "backups")
}

func (b *OSBridge) ReadFile(_ context.Context, name string) (string, error) {
	raw, err := os.ReadFile(b.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(raw), nil
}

// WriteFile replaces name atomically through a temp file in the same directory.
func (b *OSBridge) WriteFile(_ context.Context, name, data string) error {
	return writeAtomic(b.path(name), []byte(data))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".iprompt-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (b *OSBridge) CreateBackup(_ context.Context) (string, error) {
	raw, err := os.ReadFile(b.path(b.dataFile()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errors.New("no data file to backup")
		}
		return "", fmt.Errorf("read data file: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	dst := filepath.Join(b.backupDir(), BackupFileName(now()))
	if err := writeAtomic(dst, raw); err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	return dst, nil
}

// ListBackups returns backups newest first.
func (b *OSBridge) ListBackups(_ context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(b.backupDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []BackupInfo{}, nil
		}
		return nil, fmt.Errorf("read backups directory: %w", err)
	}

	out := make([]BackupInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isBackupName(e.Name()) {
			continue
		}
		info := BackupInfo{ID: e.Name(), Name: e.Name(), CreatedAt: backupTime(e.Name())}
		if fi, err := e.Info(); err == nil {
			info.Size = fi.Size()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

func (b *OSBridge) RestoreBackup(_ context.Context, id string) error {
	if !isBackupName(id) {
		return fmt.Errorf("invalid backup id %q", id)
	}
	raw, err := os.ReadFile(filepath.Join(b.backupDir(), id))
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := writeAtomic(b.path(b.dataFile()), raw); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	return nil
}

func (b *OSBridge) dataFile() string {
	if b.DataFile == "" {
		return DataFileName
	}
	return b.DataFile
}
