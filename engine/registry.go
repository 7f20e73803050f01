package engine

import (
	"context"
	"fmt"
	"sync"
)

type registryKey struct {
	database string
	version  int
}

// Registry hands out open databases and owns their lifecycle. Opening
// the same database at the same version twice returns the same DB.
// Opening it at a second version while the first is still open is
// refused, the analogue of an upgrade blocked by a stale connection.
// Close is the process shutdown hook, it closes every open database.
type Registry struct {
	engine Engine
	mutex  sync.Mutex
	open   map[registryKey]DB
	closed bool
}

func NewRegistry(engine Engine) *Registry {
	return &Registry{
		engine: engine,
		open:   map[registryKey]DB{},
	}
}

func (r *Registry) Open(ctx context.Context, schema Schema) (DB, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return nil, ErrorRegistryClosed
	}

	key := registryKey{database: schema.Database, version: schema.Version}
	if db, exists := r.open[key]; exists {
		return db, nil
	}

	for other := range r.open {
		if other.database == schema.Database {
			return nil, fmt.Errorf("database '%s' is already open at version %d: %w",
				schema.Database, other.version, ErrorVersionConflict)
		}
	}

	db, err := r.engine.Open(ctx, schema)
	if err != nil {
		return nil, err
	}
	r.open[key] = db
	return db, nil
}

// Close closes every open database. It is idempotent and the registry
// refuses new opens afterwards.
func (r *Registry) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for key, db := range r.open {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.open, key)
	}
	return firstErr
}
