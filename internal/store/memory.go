package store

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps documents in-memory and guards access with a RWMutex.
// Identifiers are generated the same way the database generates them, so the
// HTTP contract is identical to MongoStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[primitive.ObjectID]Document
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[primitive.ObjectID]Document)}
}

// Get returns a defensive copy of the document with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (Document, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[oid]
	if !ok {
		return nil, notFound(id)
	}
	return cloneDocument(doc), nil
}

// List returns copies of all documents ordered by identifier, which is
// creation order for ObjectIDs.
func (s *MemoryStore) List(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]primitive.ObjectID, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Hex() < ids[j].Hex()
	})

	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneDocument(s.docs[id]))
	}
	return out, nil
}

// Insert stores a copy of doc under a freshly generated identifier.
func (s *MemoryStore) Insert(_ context.Context, doc Document) (string, error) {
	oid := primitive.NewObjectID()
	stored := cloneDocument(doc)
	stored[IDField] = oid

	s.mu.Lock()
	s.docs[oid] = stored
	s.mu.Unlock()

	return oid.Hex(), nil
}

// Status always reports a healthy store.
func (s *MemoryStore) Status(_ context.Context) (Status, error) {
	return Status{OK: true, Debug: false, Version: "memory"}, nil
}

// Close is a no-op.
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(cloneDocument(val))
	case Document:
		return cloneDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
