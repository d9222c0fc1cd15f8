package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// timestamps are stored fixed-width so JSONB text ordering matches time ordering
const jsonTimeLayout = "2006-01-02T15:04:05.000000000Z"

var collectionName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Postgres is a Store that keeps one JSONB table per collection
type Postgres struct {
	pool   *pgxpool.Pool
	tables sync.Map
}

// NewPostgres wraps an existing pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) ensureTable(ctx context.Context, collection string) error {
	if !collectionName.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	if _, ok := p.tables.Load(collection); ok {
		return nil
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         UUID PRIMARY KEY,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, collection)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", collection, err)
	}
	p.tables.Store(collection, struct{}{})
	return nil
}

func (p *Postgres) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return "", err
	}

	body, err := encodeJSON(doc)
	if err != nil {
		return "", err
	}

	id := uuid.New()
	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)`, collection)
	if _, err := p.pool.Exec(ctx, query, id, body); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return id.String(), nil
}

func (p *Postgres) FindOne(ctx context.Context, collection string, query Document) (Document, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return nil, err
	}

	filter, err := encodeJSON(query)
	if err != nil {
		return nil, err
	}

	var raw []byte
	sql := fmt.Sprintf(`SELECT doc FROM %s WHERE doc @> $1::jsonb ORDER BY created_at LIMIT 1`, collection)
	err = p.pool.QueryRow(ctx, sql, filter).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find in %s: %w", collection, err)
	}
	return decodeJSON(raw)
}

func (p *Postgres) Find(ctx context.Context, collection string, query Document, opts ...FindOption) ([]Document, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return nil, err
	}
	o := applyFindOptions(opts)

	filter, err := encodeJSON(query)
	if err != nil {
		return nil, err
	}

	args := []any{filter}
	sql := fmt.Sprintf(`SELECT doc FROM %s WHERE doc @> $1::jsonb`, collection)
	if o.SortField != "" {
		args = append(args, o.SortField)
		sql += ` ORDER BY doc->>($2::text) DESC, created_at DESC`
	} else {
		sql += ` ORDER BY created_at`
	}
	if o.Limit > 0 {
		args = append(args, o.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeJSON(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return docs, nil
}

func (p *Postgres) UpdateOne(ctx context.Context, collection string, query, update Document, upsert bool) (int64, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return 0, err
	}

	filter, err := encodeJSON(query)
	if err != nil {
		return 0, err
	}
	patch, err := encodeJSON(update)
	if err != nil {
		return 0, err
	}

	sql := fmt.Sprintf(`
		UPDATE %[1]s SET doc = %[1]s.doc || $2::jsonb
		WHERE id = (SELECT id FROM %[1]s WHERE doc @> $1::jsonb ORDER BY created_at LIMIT 1)
	`, collection)
	tag, err := p.pool.Exec(ctx, sql, filter, patch)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", collection, err)
	}
	if tag.RowsAffected() > 0 || !upsert {
		return tag.RowsAffected(), nil
	}

	merged := make(Document, len(query)+len(update))
	for k, v := range query {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	if _, err := p.Insert(ctx, collection, merged); err != nil {
		return 0, err
	}
	return 1, nil
}

func (p *Postgres) DeleteOne(ctx context.Context, collection string, query Document) (int64, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return 0, err
	}

	filter, err := encodeJSON(query)
	if err != nil {
		return 0, err
	}

	sql := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE id = (SELECT id FROM %[1]s WHERE doc @> $1::jsonb ORDER BY created_at LIMIT 1)
	`, collection)
	tag, err := p.pool.Exec(ctx, sql, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) DeleteMany(ctx context.Context, collection string, query Document) (int64, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return 0, err
	}

	filter, err := encodeJSON(query)
	if err != nil {
		return 0, err
	}

	tag, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE doc @> $1::jsonb`, collection), filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}

func encodeJSON(doc Document) (string, error) {
	if doc == nil {
		return "{}", nil
	}
	body, err := json.Marshal(toJSONValue(doc))
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(body), nil
}

// decodeJSON turns stored JSON back into a Document; fixed-width timestamps become time.Time
func decodeJSON(raw []byte) (Document, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return Document(fromJSONValue(doc).(map[string]any)), nil
}

func toJSONValue(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC().Format(jsonTimeLayout)
	case *time.Time:
		if tv == nil {
			return nil
		}
		return tv.UTC().Format(jsonTimeLayout)
	case Document:
		return toJSONValue(map[string]any(tv))
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = toJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = toJSONValue(item)
		}
		return out
	default:
		return v
	}
}

func fromJSONValue(v any) any {
	switch tv := v.(type) {
	case string:
		if len(tv) == len(jsonTimeLayout) {
			if t, err := time.Parse(jsonTimeLayout, tv); err == nil {
				return t
			}
		}
		return tv
	case map[string]any:
		for k, item := range tv {
			tv[k] = fromJSONValue(item)
		}
		return tv
	case []any:
		for i, item := range tv {
			tv[i] = fromJSONValue(item)
		}
		return tv
	default:
		return v
	}
}
