package docstore

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a process-local Store, selected with a memory:// URI for local
// development and used by tests.
type Memory struct {
	mu          sync.Mutex
	collections map[string][]memoryEntry
}

type memoryEntry struct {
	id  string
	doc Document
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]memoryEntry)}
}

func (m *Memory) Insert(_ context.Context, collection string, doc Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	stored := cloneDocument(doc)
	stored["_id"] = id
	m.collections[collection] = append(m.collections[collection], memoryEntry{id: id, doc: stored})
	return id, nil
}

func (m *Memory) FindOne(_ context.Context, collection string, query Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.collections[collection] {
		if matches(e.doc, query) {
			return cloneDocument(e.doc), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Find(_ context.Context, collection string, query Document, opts ...FindOption) ([]Document, error) {
	o := applyFindOptions(opts)

	m.mu.Lock()
	var out []Document
	for _, e := range m.collections[collection] {
		if matches(e.doc, query) {
			out = append(out, cloneDocument(e.doc))
		}
	}
	m.mu.Unlock()

	if o.SortField != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return less(out[j][o.SortField], out[i][o.SortField])
		})
	}
	if o.Limit > 0 && len(out) > o.Limit {
		out = out[:o.Limit]
	}
	return out, nil
}

func (m *Memory) UpdateOne(_ context.Context, collection string, query, update Document, upsert bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.collections[collection] {
		if matches(e.doc, query) {
			for k, v := range cloneDocument(update) {
				e.doc[k] = v
			}
			return 1, nil
		}
	}
	if !upsert {
		return 0, nil
	}

	id := uuid.NewString()
	stored := cloneDocument(query)
	for k, v := range cloneDocument(update) {
		stored[k] = v
	}
	stored["_id"] = id
	m.collections[collection] = append(m.collections[collection], memoryEntry{id: id, doc: stored})
	return 1, nil
}

func (m *Memory) DeleteOne(_ context.Context, collection string, query Document) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.collections[collection]
	for i, e := range entries {
		if matches(e.doc, query) {
			m.collections[collection] = append(entries[:i:i], entries[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *Memory) DeleteMany(_ context.Context, collection string, query Document) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []memoryEntry
	var deleted int64
	for _, e := range m.collections[collection] {
		if matches(e.doc, query) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.collections[collection] = kept
	return deleted, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close(context.Context) error { return nil }

func matches(doc, query Document) bool {
	for k, want := range query {
		if !reflect.DeepEqual(doc[k], want) {
			return false
		}
	}
	return true
}

func less(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv
		}
	case int:
		if bv, ok := b.(int); ok {
			return av < bv
		}
	}
	return false
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case Document:
		return map[string]any(cloneDocument(tv))
	case map[string]any:
		return map[string]any(cloneDocument(tv))
	case map[string]string:
		out := make(map[string]any, len(tv))
		for k, s := range tv {
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
