package engine

import (
	"context"
	"fmt"
	"sync"
)

// MemoryEngine keeps databases in process memory. Data survives closing
// and reopening a database within the same process, which makes it good
// for tests and throwaway runs.
type MemoryEngine struct {
	mutex     sync.Mutex
	databases map[string]*memoryDatabase
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		databases: map[string]*memoryDatabase{},
	}
}

type memoryDatabase struct {
	version int
	tables  map[string]*table
}

func (e *MemoryEngine) Open(ctx context.Context, schema Schema) (DB, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	db, exists := e.databases[schema.Database]
	if !exists {
		db = &memoryDatabase{tables: map[string]*table{}}
		e.databases[schema.Database] = db
	}

	if db.version > schema.Version {
		return nil, fmt.Errorf("database '%s' is at version %d, requested %d: %w",
			schema.Database, db.version, schema.Version, ErrorVersionConflict)
	}

	if db.version < schema.Version {
		for _, storeSchema := range schema.Stores {
			t, exists := db.tables[storeSchema.Name]
			if !exists {
				t = newTable(storeSchema)
				db.tables[storeSchema.Name] = t
			}
			for _, indexSchema := range storeSchema.Indexes {
				if err := t.createIndex(indexSchema); err != nil {
					return nil, err
				}
			}
		}
		db.version = schema.Version
	}

	return &memoryDB{database: db}, nil
}

type memoryDB struct {
	database *memoryDatabase
}

func (db *memoryDB) Store(name string) (Store, error) {
	t, exists := db.database.tables[name]
	if !exists {
		return nil, fmt.Errorf("store '%s': %w", name, ErrorStoreNotFound)
	}
	return t, nil
}

func (db *memoryDB) Close() error {
	return nil
}
