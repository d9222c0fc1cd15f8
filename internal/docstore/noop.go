package docstore

import "context"

// Noop is the store used when no backend is configured
type Noop struct{}

func (Noop) Insert(context.Context, string, Document) (string, error) { return "", ErrDisabled }

func (Noop) FindOne(context.Context, string, Document) (Document, error) { return nil, ErrDisabled }

func (Noop) Find(context.Context, string, Document, ...FindOption) ([]Document, error) {
	return nil, ErrDisabled
}

func (Noop) UpdateOne(context.Context, string, Document, Document, bool) (int64, error) {
	return 0, ErrDisabled
}

func (Noop) DeleteOne(context.Context, string, Document) (int64, error) { return 0, ErrDisabled }

func (Noop) DeleteMany(context.Context, string, Document) (int64, error) { return 0, ErrDisabled }

func (Noop) Ping(context.Context) error { return ErrDisabled }

func (Noop) Close(context.Context) error { return nil }
