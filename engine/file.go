package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// FileEngine persists each database as a directory with a meta file and
// one append only journal per store. Opening replays the journals into
// memory, so reads and traversals are served from btrees and writes pay
// one journal append.
type FileEngine struct {
	dir string
}

func NewFileEngine(dir string) *FileEngine {
	return &FileEngine{dir: dir}
}

type fileMeta struct {
	Database string `json:"database"`
	Version  int    `json:"version"`
}

type fileDB struct {
	tables map[string]*table
}

func (e *FileEngine) Open(ctx context.Context, schema Schema) (DB, error) {

	dir := filepath.Join(e.dir, schema.Database)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	metaFilename := filepath.Join(dir, "meta.json")
	meta, err := readMeta(metaFilename)
	if err != nil {
		return nil, err
	}
	if meta.Version > schema.Version {
		return nil, fmt.Errorf("database '%s' is at version %d, requested %d: %w",
			schema.Database, meta.Version, schema.Version, ErrorVersionConflict)
	}
	upgrading := meta.Version < schema.Version

	db := &fileDB{tables: map[string]*table{}}
	for _, storeSchema := range schema.Stores {
		filename := filepath.Join(dir, storeSchema.Name+".journal")
		if !upgrading {
			// Stores are only created during an upgrade. A missing
			// journal at the current version means the store does not
			// exist.
			if _, err := os.Stat(filename); os.IsNotExist(err) {
				continue
			}
		}

		t := newTable(storeSchema)
		j, err := openJournal(filename, func(c *command) error {
			return replayCommand(t, c)
		})
		if err != nil {
			db.Close()
			return nil, err
		}

		if upgrading {
			for _, indexSchema := range storeSchema.Indexes {
				if _, exists := t.indexes[indexSchema.Name]; exists {
					continue
				}
				if err := t.createIndex(indexSchema); err != nil {
					j.close()
					db.Close()
					return nil, err
				}
				if err := j.appendIndex(indexSchema); err != nil {
					j.close()
					db.Close()
					return nil, fmt.Errorf("journal: %w", err)
				}
			}
		}

		t.journal = j
		db.tables[storeSchema.Name] = t
	}

	if upgrading {
		meta = fileMeta{Database: schema.Database, Version: schema.Version}
		if err := writeMeta(metaFilename, meta); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func replayCommand(t *table, c *command) error {
	switch c.Name {
	case commandPut:
		_, err := t.applyPut(c.Payload)
		return err
	case commandBatch:
		records := []json.RawMessage{}
		if err := json.Unmarshal(c.Payload, &records); err != nil {
			return fmt.Errorf("decode batch: %w", err)
		}
		for _, record := range records {
			if _, err := t.applyPut(record); err != nil {
				return err
			}
		}
		return nil
	case commandRemove:
		params := removePayload{}
		if err := json.Unmarshal(c.Payload, &params); err != nil {
			return fmt.Errorf("decode remove: %w", err)
		}
		t.applyRemove(params.Key)
		return nil
	case commandClear:
		t.applyClear()
		return nil
	case commandIndex:
		schema := IndexSchema{}
		if err := json.Unmarshal(c.Payload, &schema); err != nil {
			return fmt.Errorf("decode index: %w", err)
		}
		return t.createIndex(schema)
	}
	return fmt.Errorf("unknown command '%s'", c.Name)
}

func (db *fileDB) Store(name string) (Store, error) {
	t, exists := db.tables[name]
	if !exists {
		return nil, fmt.Errorf("store '%s': %w", name, ErrorStoreNotFound)
	}
	return t, nil
}

func (db *fileDB) Close() error {
	var firstErr error
	for _, t := range db.tables {
		if t.journal == nil {
			continue
		}
		if err := t.journal.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func readMeta(filename string) (fileMeta, error) {
	meta := fileMeta{}
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("read meta: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode meta: %w", err)
	}
	return meta, nil
}

func writeMeta(filename string, meta fileMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := atomic.WriteFile(filename, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}
