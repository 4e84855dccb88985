package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// WriteAttribute stores value as attribute attr of holder under loc. holder
// is a dataset name, or "" for the group itself.
func (f *File) WriteAttribute(loc Location, holder, attr string, value any) error {
	blob, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode attribute %s/%s@%s: %w", loc, holder, attr, err)
	}
	_, err = f.db.Exec(`INSERT INTO attributes (path, holder, name, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (path, holder, name) DO UPDATE SET value = excluded.value`,
		string(loc), holder, attr, blob)
	if err != nil {
		return fmt.Errorf("write attribute %s/%s@%s: %w", loc, holder, attr, err)
	}
	return nil
}

// ReadAttribute decodes attribute attr of holder under loc into dst.
func (f *File) ReadAttribute(loc Location, holder, attr string, dst any) error {
	var blob []byte
	err := f.db.QueryRow(`SELECT value FROM attributes WHERE path = ? AND holder = ? AND name = ?`,
		string(loc), holder, attr).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("attribute %s/%s@%s in %s: %w", loc, holder, attr, f.path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("attribute %s/%s@%s in %s: %w", loc, holder, attr, f.path, err)
	}
	if err := cbor.Unmarshal(blob, dst); err != nil {
		return fmt.Errorf("decode attribute %s/%s@%s: %w", loc, holder, attr, err)
	}
	return nil
}

// ReadFloatAttribute reads a numeric attribute as float64. A one-element
// array is accepted, as scan files store scalars that way.
func (f *File) ReadFloatAttribute(loc Location, holder, attr string) (float64, error) {
	var v any
	if err := f.ReadAttribute(loc, holder, attr, &v); err != nil {
		return 0, err
	}
	if arr, ok := v.([]any); ok {
		if len(arr) != 1 {
			return 0, fmt.Errorf("attribute %s/%s@%s has %d values, want 1", loc, holder, attr, len(arr))
		}
		v = arr[0]
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("attribute %s/%s@%s is %T, not a number", loc, holder, attr, v)
}
