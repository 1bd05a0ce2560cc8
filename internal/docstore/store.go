// Package docstore is a collection/document store with JSON records.
package docstore

import (
	"context"
	"errors"
	"regexp"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// ErrInvalidField is returned for query field names that are not plain identifiers.
var ErrInvalidField = errors.New("docstore: invalid field name")

// Record is a schemaless document body.
type Record map[string]any

// Snapshot is a stored document with its id.
type Snapshot struct {
	ID   string
	Data Record
}

// Store is the document store used by the repository adapters.
type Store interface {
	Create(ctx context.Context, collection string, data Record) (string, error)
	Set(ctx context.Context, collection, id string, data Record) error
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error)
	List(ctx context.Context, collection string) ([]Snapshot, error)
	Delete(ctx context.Context, collection, id string) error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validField(field string) error {
	if !fieldPattern.MatchString(field) {
		return ErrInvalidField
	}
	return nil
}
