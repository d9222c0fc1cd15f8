// Package docstore is the narrow document-store capability used for durable
// telemetry, notification and device records. The backend is chosen once at
// startup; an absent backend is the Noop store.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Collections used by the service
const (
	CollectionTelemetry     = "telemetry"
	CollectionNotifications = "notifications"
	CollectionDevices       = "devices"
)

var (
	// ErrNotFound is returned by FindOne when nothing matches
	ErrNotFound = errors.New("document not found")
	// ErrDisabled is returned by every call on the Noop store
	ErrDisabled = errors.New("document store disabled")
)

// Document is a schemaless record. Queries are equality matches on top-level fields;
// updates replace the named top-level fields.
type Document map[string]any

// Store is the document-store capability
type Store interface {
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	FindOne(ctx context.Context, collection string, query Document) (Document, error)
	Find(ctx context.Context, collection string, query Document, opts ...FindOption) ([]Document, error)
	UpdateOne(ctx context.Context, collection string, query, update Document, upsert bool) (int64, error)
	DeleteOne(ctx context.Context, collection string, query Document) (int64, error)
	DeleteMany(ctx context.Context, collection string, query Document) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// FindOptions controls ordering and size of Find results
type FindOptions struct {
	SortField string
	Limit     int
}

// FindOption mutates FindOptions
type FindOption func(*FindOptions)

// SortDesc orders results by field, newest/largest first
func SortDesc(field string) FindOption {
	return func(o *FindOptions) { o.SortField = field }
}

// Limit caps the number of results; n <= 0 means no limit
func Limit(n int) FindOption {
	return func(o *FindOptions) { o.Limit = n }
}

func applyFindOptions(opts []FindOption) FindOptions {
	var o FindOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Kind names the backend selected by a connection URI
type Kind string

const (
	KindNone     Kind = "none"
	KindMemory   Kind = "memory"
	KindMongo    Kind = "mongodb"
	KindPostgres Kind = "postgres"
)

// KindFromURI selects a backend by URI scheme
func KindFromURI(uri string) (Kind, error) {
	switch {
	case uri == "":
		return KindNone, nil
	case strings.HasPrefix(uri, "memory://"):
		return KindMemory, nil
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return KindMongo, nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return KindPostgres, nil
	default:
		return KindNone, fmt.Errorf("unsupported store uri scheme: %s", uri)
	}
}
