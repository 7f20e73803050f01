// Package engine provides the storage backends for snipdb. A backend
// opens versioned databases described by a Schema and exposes ordered
// record stores with secondary indexes. Records are JSON documents and
// the primary key is extracted from a configurable field.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrorStoreNotFound = errors.New("store not found")
var ErrorIndexNotFound = errors.New("index not found")
var ErrorMissingKey = errors.New("record is missing the key field")
var ErrorUniqueConflict = errors.New("unique index conflict")
var ErrorVersionConflict = errors.New("version conflict")
var ErrorRegistryClosed = errors.New("registry is closed")

// Schema describes a database: its name, its version and the stores it
// should contain at that version. Opening a database with a higher
// version than the stored one upgrades it in place, creating the stores
// and indexes that are missing and backfilling index entries from the
// existing records.
type Schema struct {
	Database string        `json:"database"`
	Version  int           `json:"version"`
	Stores   []StoreSchema `json:"stores"`
}

type StoreSchema struct {
	Name     string        `json:"name"`
	KeyField string        `json:"key_field"`
	Indexes  []IndexSchema `json:"indexes"`
}

type IndexSchema struct {
	Name       string `json:"name"`
	Field      string `json:"field"`
	Unique     bool   `json:"unique"`
	MultiEntry bool   `json:"multi_entry"`
}

// Engine opens databases. Implementations differ in where the data
// lives (memory, append only journal files or sqlite) but expose the
// same transactional semantics.
type Engine interface {
	Open(ctx context.Context, schema Schema) (DB, error)
}

type DB interface {
	Store(name string) (Store, error)
	Close() error
}

// Store is an ordered collection of JSON records addressed by primary
// key. Write operations are atomic, PutAll applies all records or none.
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Put(ctx context.Context, record json.RawMessage) error
	PutAll(ctx context.Context, records []json.RawMessage) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Ascend(ctx context.Context, f func(key string, record json.RawMessage) bool) error
	ByIndex(ctx context.Context, index string, q *IndexQuery, f func(key string, record json.RawMessage) bool) error
	Indexes() []string
}

// IndexQuery restricts a ByIndex traversal. A nil query walks the whole
// index in ascending order. Value matches an exact index key, From and
// To are inclusive bounds. Reverse walks from the high end.
type IndexQuery struct {
	Value   any
	From    any
	To      any
	Reverse bool
}

// Index keys are either strings or numbers. Numbers order before
// strings, matching how mixed key types collate in the stores.
func normalizeKey(v any) (any, bool) {
	switch k := v.(type) {
	case string:
		return k, true
	case float64:
		return k, true
	case int:
		return float64(k), true
	case int64:
		return float64(k), true
	}
	return nil, false
}

func compareKeys(a, b any) int {
	na, aNum := a.(float64)
	nb, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	if aNum {
		return -1
	}
	if bNum {
		return 1
	}
	return strings.Compare(a.(string), b.(string))
}

// recordKey extracts the primary key of a record.
func recordKey(record json.RawMessage, keyField string) (string, error) {
	k := gjson.GetBytes(record, keyField)
	switch k.Type {
	case gjson.String:
		if k.Str == "" {
			return "", fmt.Errorf("field '%s': %w", keyField, ErrorMissingKey)
		}
		return k.Str, nil
	case gjson.Number:
		return k.String(), nil
	}
	return "", fmt.Errorf("field '%s': %w", keyField, ErrorMissingKey)
}

// indexKeys extracts the index keys a record contributes to an index.
// Records without the field, or with a value that is not a string or a
// number, are not indexed. Arrays fan out to one key per valid element
// when the index is multi entry, and are skipped entirely otherwise.
func indexKeys(record json.RawMessage, schema IndexSchema) []any {
	v := gjson.GetBytes(record, schema.Field)
	if !v.Exists() {
		return nil
	}
	if v.IsArray() {
		if !schema.MultiEntry {
			return nil
		}
		keys := []any{}
		seen := map[any]bool{}
		v.ForEach(func(_, element gjson.Result) bool {
			if k, ok := resultKey(element); ok && !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
			return true
		})
		return keys
	}
	if k, ok := resultKey(v); ok {
		return []any{k}
	}
	return nil
}

func resultKey(v gjson.Result) (any, bool) {
	switch v.Type {
	case gjson.String:
		return v.Str, true
	case gjson.Number:
		return v.Num, true
	}
	return nil, false
}
