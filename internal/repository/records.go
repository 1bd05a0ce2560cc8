// Package repository adapts the document and object stores to listing, image and profile operations.
package repository

import (
	"encoding/json"
	"fmt"

	"webcarros/internal/docstore"
)

// toRecord converts a struct into a document body using its json tags.
func toRecord(v any) (docstore.Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec docstore.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return rec, nil
}

// fromRecord decodes a document body into dst.
func fromRecord(rec docstore.Record, dst any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
