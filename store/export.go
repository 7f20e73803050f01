package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/natefinch/atomic"
)

// ErrorImport marks a payload that cannot be imported. The message
// describes what is wrong with it.
var ErrorImport = errors.New("invalid import")

const exportVersion = 1

type exportEnvelope struct {
	V          int               `json:"v"`
	ExportedAt int64             `json:"exportedAt"`
	Items      []json.RawMessage `json:"items"`
}

// ExportJSON dumps every record wrapped in a versioned envelope with
// the export timestamp in unix milliseconds.
func (s *Store[T]) ExportJSON(ctx context.Context) ([]byte, error) {
	records, err := s.listRaw(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(exportEnvelope{
		V:          exportVersion,
		ExportedAt: time.Now().UnixMilli(),
		Items:      records,
	})
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// ImportJSON merges the records of data into the store as one atomic
// batch. It accepts both an export envelope and a bare array of
// records. Nothing is written when the payload is malformed.
func (s *Store[T]) ImportJSON(ctx context.Context, data []byte) error {
	items, err := decodeImport[T](data)
	if err != nil {
		return err
	}
	return s.UpsertMany(ctx, items)
}

func decodeImport[T any](data []byte) ([]T, error) {
	decoder := jsontext.NewDecoder(bytes.NewReader(data))

	kind := decoder.PeekKind()
	if kind == '[' {
		items := []T{}
		if err := json2.UnmarshalDecode(decoder, &items); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrorImport, err.Error())
		}
		return items, nil
	}
	if kind != '{' {
		return nil, fmt.Errorf("%w: expected an export envelope or an array of records", ErrorImport)
	}

	envelope := struct {
		Items jsontext.Value `json:"items"`
	}{}
	if err := json2.UnmarshalDecode(decoder, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrorImport, err.Error())
	}
	if envelope.Items.Kind() != '[' {
		return nil, fmt.Errorf("%w: items must be an array", ErrorImport)
	}

	items := []T{}
	if err := json2.Unmarshal(envelope.Items, &items); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrorImport, err.Error())
	}
	return items, nil
}

// ExportToFile writes the export to path, atomically so a reader never
// sees half a file.
func (s *Store[T]) ExportToFile(ctx context.Context, path string) error {
	data, err := s.ExportJSON(ctx)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func (s *Store[T]) ImportFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}
	return s.ImportJSON(ctx, data)
}
