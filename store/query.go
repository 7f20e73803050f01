package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SierraSoftworks/connor"
	"github.com/tidwall/gjson"

	"github.com/fulldump/snipdb/engine"
)

// Search returns the records whose search fields contain needle, case
// insensitively. Array fields match if any element matches. A blank
// needle lists everything.
func (s *Store[T]) Search(ctx context.Context, needle string) ([]T, error) {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return s.ListAll(ctx, nil)
	}
	needle = strings.ToLower(needle)

	records, err := s.listRaw(ctx)
	if err != nil {
		return nil, err
	}

	matches := []json.RawMessage{}
	for _, record := range records {
		if s.matchesSearch(record, needle) {
			matches = append(matches, record)
		}
	}
	return decodeAll[T](matches)
}

func (s *Store[T]) matchesSearch(record json.RawMessage, needle string) bool {
	for _, field := range s.config.SearchFields {
		v := gjson.GetBytes(record, field)
		if !v.Exists() {
			continue
		}
		if v.IsArray() {
			for _, element := range v.Array() {
				if strings.Contains(strings.ToLower(element.String()), needle) {
					return true
				}
			}
			continue
		}
		if strings.Contains(strings.ToLower(v.String()), needle) {
			return true
		}
	}
	return false
}

// Find returns the records matching filter, a mongo style query
// document.
func (s *Store[T]) Find(ctx context.Context, filter map[string]any) ([]T, error) {
	records, err := s.listRaw(ctx)
	if err != nil {
		return nil, err
	}

	matches := []json.RawMessage{}
	for _, record := range records {
		data := map[string]interface{}{}
		if err := json.Unmarshal(record, &data); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		match, err := connor.Match(filter, data)
		if err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
		if match {
			matches = append(matches, record)
		}
	}
	return decodeAll[T](matches)
}

// ListByIndex returns the records selected by q in the order of the
// named index.
func (s *Store[T]) ListByIndex(ctx context.Context, index string, q *engine.IndexQuery) ([]T, error) {
	st, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	records := []json.RawMessage{}
	err = st.ByIndex(ctx, index, q, func(key string, record json.RawMessage) bool {
		records = append(records, record)
		return true
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[T](records)
}
