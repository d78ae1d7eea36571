package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	sq "github.com/Masterminds/squirrel"
)

func (s *SQLStore) Load(ctx context.Context) (*Document, error) {
	raw, found, err := s.Get(ctx, DataKey)
	if err != nil {
		return nil, err
	}
	if !found || raw == "" {
		return nil, nil
	}
	return decodeStored([]byte(raw))
}

func (s *SQLStore) Save(ctx context.Context, doc *Document) error {
	body, err := encodeDocument(stamped(doc, s.now()), false)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return s.Put(ctx, DataKey, string(body))
}

func (s *SQLStore) Export(ctx context.Context) ([]byte, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNoData
	}
	return encodeDocument(doc, true)
}

func (s *SQLStore) Import(ctx context.Context, r io.Reader) (*Document, error) {
	doc, err := DecodeDocument(r, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Usage reports the stored document size against the configured quota.
func (s *SQLStore) Usage(ctx context.Context) (Usage, error) {
	raw, _, err := s.Get(ctx, DataKey)
	if err != nil {
		return Usage{Limit: s.quota}, err
	}
	return usageOf(int64(len(raw)), s.quota), nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (value string, found bool, err error) {
	q := s.sql.Select("value").
		From("kv").
		Where(sq.Eq{"key": key})
	query, args, err := q.ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build get kv query: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get kv %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Put(ctx context.Context, key, value string) error {
	q := s.sql.Insert("kv").
		Columns("key", "value", "updated_at").
		Values(key, value, nowExpr(s.driver)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build put kv query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("put kv %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	q := s.sql.Delete("kv").Where(sq.Eq{"key": key})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build remove kv query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("remove kv %q: %w", key, err)
	}
	return nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
