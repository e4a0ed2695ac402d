// Package store persists entities in a document database. Identifiers are
// store-native (MongoDB ObjectIDs, rendered as 24-character hex strings).
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
)

// IDField is the internal identifier field of a stored document.
const IDField = "_id"

var (
	// ErrNotFound indicates no document matches the identifier.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidID indicates the identifier is not a valid ObjectID.
	ErrInvalidID = errors.New("invalid document identifier")
)

// Document is an opaque JSON-like entity.
type Document map[string]any

// Status is what the store reports about itself for readiness checks.
type Status struct {
	OK      bool   `json:"ok"`
	Debug   any    `json:"debug"`
	Version string `json:"version"`
}

// Store provides access to the entity collection.
type Store interface {
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context) ([]Document, error)
	Insert(ctx context.Context, doc Document) (string, error)
	Status(ctx context.Context) (Status, error)
	Close(ctx context.Context) error
}

// ParseID validates a hex identifier.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.Wrap(apperr.KindInvalidIdentifier, ErrInvalidID, "%q is not a valid ObjectId, it must be a 12-byte input or a 24-character hex string", id)
	}
	return oid, nil
}

// notFound wraps ErrNotFound with the HTTP-facing message.
func notFound(id string) error {
	return apperr.Wrap(apperr.KindNotFound, ErrNotFound, "Entity with ID %s could not be found", id)
}

// Expose renames the internal identifier to "id" and renders it as a string.
func Expose(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	if raw, ok := doc[IDField]; ok {
		switch id := raw.(type) {
		case primitive.ObjectID:
			out["id"] = id.Hex()
		default:
			out["id"] = fmt.Sprint(id)
		}
	}
	return out
}
