package storage

import (
	"context"
	"io"
)

// Adapter persists the whole document. Load returns nil, nil when nothing is stored.
type Adapter interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, r io.Reader) (*Document, error)
	Usage(ctx context.Context) (Usage, error)
}

// Backuper is implemented by adapters that can snapshot their data.
type Backuper interface {
	CreateBackup(ctx context.Context) (string, error)
	ListBackups(ctx context.Context) ([]BackupInfo, error)
	RestoreBackup(ctx context.Context, id string) error
}

type flusher interface {
	Flush(ctx context.Context) error
}

// CreateBackup snapshots a's data when a (or the adapter it wraps) supports backups.
// Pending batched writes are flushed first.
func CreateBackup(ctx context.Context, a Adapter) (string, error) {
	b, ok := asBackuper(a)
	if !ok {
		return "", ErrNotSupported
	}
	if f, ok := a.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return "", err
		}
	}
	return b.CreateBackup(ctx)
}

func ListBackups(ctx context.Context, a Adapter) ([]BackupInfo, error) {
	b, ok := asBackuper(a)
	if !ok {
		return nil, ErrNotSupported
	}
	return b.ListBackups(ctx)
}

func RestoreBackup(ctx context.Context, a Adapter, id string) error {
	b, ok := asBackuper(a)
	if !ok {
		return ErrNotSupported
	}
	if f, ok := a.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return err
		}
	}
	return b.RestoreBackup(ctx, id)
}

type unwrapper interface {
	Unwrap() Adapter
}

func asBackuper(a Adapter) (Backuper, bool) {
	for a != nil {
		if b, ok := a.(Backuper); ok {
			return b, true
		}
		u, ok := a.(unwrapper)
		if !ok {
			return nil, false
		}
		a = u.Unwrap()
	}
	return nil, false
}
