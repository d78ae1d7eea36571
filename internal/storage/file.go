package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	DataFileName = "iprompt-data.json"

	backupPrefix = "iprompt-backup-"
	backupLayout = "20060102_150405"
)

var ErrNoFileSelected = errors.New("no file selected")

// Bridge is the host filesystem as seen by FileStore. ReadFile returns "" for a
// missing file.
type Bridge interface {
	ReadFile(ctx context.Context, name string) (string, error)
	WriteFile(ctx context.Context, name, data string) error
}

// BackupBridge is optionally implemented by bridges that can copy the data file aside.
type BackupBridge interface {
	CreateBackup(ctx context.Context) (string, error)
	ListBackups(ctx context.Context) ([]BackupInfo, error)
	RestoreBackup(ctx context.Context, id string) error
}

type FileFilter struct {
	Name       string
	Extensions []string
}

// DialogBridge is optionally implemented by bridges that can ask the user for a path.
// An empty path means the user cancelled.
type DialogBridge interface {
	OpenFileDialog(ctx context.Context, filters []FileFilter) (string, error)
	SaveFileDialog(ctx context.Context, defaultName string, filters []FileFilter) (string, error)
}

var jsonFilters = []FileFilter{{Name: "JSON", Extensions: []string{"json"}}}

type FileConfig struct {
	DataFile string
	Now      func() time.Time
}

// FileStore keeps the document as an indented JSON file behind a Bridge.
type FileStore struct {
	bridge   Bridge
	dataFile string
	now      func() time.Time
}

func NewFileStore(bridge Bridge, cfg FileConfig) *FileStore {
	if cfg.DataFile == "" {
		cfg.DataFile = DataFileName
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FileStore{bridge: bridge, dataFile: cfg.DataFile, now: cfg.Now}
}

func (f *FileStore) Load(ctx context.Context) (*Document, error) {
	raw, err := f.bridge.ReadFile(ctx, f.dataFile)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return decodeStored([]byte(raw))
}

func (f *FileStore) Save(ctx context.Context, doc *Document) error {
	body, err := encodeDocument(stamped(doc, f.now()), true)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := f.bridge.WriteFile(ctx, f.dataFile, string(body)); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}
	return nil
}

func (f *FileStore) Export(ctx context.Context) ([]byte, error) {
	doc, err := f.Load(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNoData
	}
	return encodeDocument(doc, true)
}

func (f *FileStore) Import(ctx context.Context, r io.Reader) (*Document, error) {
	doc, err := DecodeDocument(r, f.now())
	if err != nil {
		return nil, err
	}
	if err := f.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Usage reports the data file size only; the file store has no quota.
func (f *FileStore) Usage(ctx context.Context) (Usage, error) {
	raw, err := f.bridge.ReadFile(ctx, f.dataFile)
	if err != nil {
		return Usage{}, fmt.Errorf("read data file: %w", err)
	}
	return Usage{Used: int64(len(raw))}, nil
}

func (f *FileStore) CreateBackup(ctx context.Context) (string, error) {
	b, ok := f.bridge.(BackupBridge)
	if !ok {
		return "", ErrNotSupported
	}
	return b.CreateBackup(ctx)
}

func (f *FileStore) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	b, ok := f.bridge.(BackupBridge)
	if !ok {
		return nil, ErrNotSupported
	}
	return b.ListBackups(ctx)
}

func (f *FileStore) RestoreBackup(ctx context.Context, id string) error {
	b, ok := f.bridge.(BackupBridge)
	if !ok {
		return ErrNotSupported
	}
	return b.RestoreBackup(ctx, id)
}

// ExportToFile asks for a destination and writes the stored document there. It returns
// the chosen path, or "" when the dialog was cancelled.
func (f *FileStore) ExportToFile(ctx context.Context) (string, error) {
	d, ok := f.bridge.(DialogBridge)
	if !ok {
		return "", ErrNotSupported
	}
	body, err := f.Export(ctx)
	if err != nil {
		return "", err
	}
	path, err := d.SaveFileDialog(ctx, ExportFileName(f.now()), jsonFilters)
	if err != nil {
		return "", fmt.Errorf("save dialog: %w", err)
	}
	if path == "" {
		return "", nil
	}
	if err := f.bridge.WriteFile(ctx, path, string(body)); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// ImportFromDialog asks for a source file and imports it.
func (f *FileStore) ImportFromDialog(ctx context.Context) (*Document, error) {
	d, ok := f.bridge.(DialogBridge)
	if !ok {
		return nil, ErrNotSupported
	}
	path, err := d.OpenFileDialog(ctx, jsonFilters)
	if err != nil {
		return nil, fmt.Errorf("open dialog: %w", err)
	}
	if path == "" {
		return nil, ErrNoFileSelected
	}
	raw, err := f.bridge.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	return f.Import(ctx, strings.NewReader(raw))
}

// ExportFileName is the suggested name for an export taken at t.
func ExportFileName(t time.Time) string {
	return "iprompt-export-" + t.UTC().Format("2006-01-02") + ".json"
}

// BackupFileName is the name of a backup taken at t.
func BackupFileName(t time.Time) string {
	return backupPrefix + t.Format(backupLayout) + ".json"
}

func isBackupName(name string) bool {
	return strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, ".json") &&
		!strings.ContainsAny(name, `/\`)
}

func backupTime(name string) time.Time {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), ".json")
	t, err := time.ParseInLocation(backupLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
