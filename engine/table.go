package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/fulldump/snipdb/utils"
)

type tableRow struct {
	key    string
	record json.RawMessage
}

func lessRows(a, b *tableRow) bool {
	return a.key < b.key
}

// table is the in memory representation of a store shared by the memory
// and the file engines. All mutations go through apply functions that
// return an undo closure, so multi record writes can roll back to the
// exact previous state when a later record fails.
type table struct {
	schema  StoreSchema
	mutex   sync.RWMutex
	rows    *btree.BTreeG[*tableRow]
	indexes map[string]*tableIndex
	journal *journal
}

func newTable(schema StoreSchema) *table {
	return &table{
		schema:  schema,
		rows:    btree.NewG(32, lessRows),
		indexes: map[string]*tableIndex{},
	}
}

type indexChange struct {
	index    *tableIndex
	inserted []indexEntry
	removed  []indexEntry
}

func undoChanges(changes []indexChange) {
	for _, c := range changes {
		for _, e := range c.inserted {
			c.index.delete(e)
		}
		for _, e := range c.removed {
			c.index.insert(e)
		}
	}
}

func (t *table) applyPut(record json.RawMessage) (func(), error) {
	key, err := recordKey(record, t.schema.KeyField)
	if err != nil {
		return nil, err
	}

	row := &tableRow{key: key, record: record}
	previous, hadPrevious := t.rows.ReplaceOrInsert(row)

	changes := []indexChange{}
	undo := func() {
		undoChanges(changes)
		if hadPrevious {
			t.rows.ReplaceOrInsert(previous)
		} else {
			t.rows.Delete(row)
		}
	}

	for _, index := range t.indexes {
		c := indexChange{index: index}
		if hadPrevious {
			c.removed = index.removeRecord(previous.record, key)
		}
		inserted, err := index.addRecord(record, key)
		if err != nil {
			changes = append(changes, c)
			undo()
			return nil, err
		}
		c.inserted = inserted
		changes = append(changes, c)
	}

	return undo, nil
}

func (t *table) applyRemove(key string) (func(), bool) {
	previous, existed := t.rows.Delete(&tableRow{key: key})
	if !existed {
		return func() {}, false
	}

	changes := []indexChange{}
	for _, index := range t.indexes {
		changes = append(changes, indexChange{
			index:   index,
			removed: index.removeRecord(previous.record, key),
		})
	}

	undo := func() {
		undoChanges(changes)
		t.rows.ReplaceOrInsert(previous)
	}
	return undo, true
}

func (t *table) applyClear() func() {
	rows := t.rows
	indexes := t.indexes

	t.rows = btree.NewG(32, lessRows)
	t.indexes = map[string]*tableIndex{}
	for name, index := range indexes {
		t.indexes[name] = newTableIndex(index.schema)
	}

	return func() {
		t.rows = rows
		t.indexes = indexes
	}
}

// createIndex installs an index and backfills it from the existing
// records. Creating an index that already exists is a noop. A backfill
// failure (a unique violation in the existing data) leaves the table
// without the index.
func (t *table) createIndex(schema IndexSchema) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.indexes[schema.Name]; exists {
		return nil
	}

	index := newTableIndex(schema)
	var backfillErr error
	t.rows.Ascend(func(row *tableRow) bool {
		if _, err := index.addRecord(row.record, row.key); err != nil {
			backfillErr = fmt.Errorf("backfill index '%s': %w", schema.Name, err)
			return false
		}
		return true
	})
	if backfillErr != nil {
		return backfillErr
	}

	t.indexes[schema.Name] = index
	return nil
}

func (t *table) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	row, found := t.rows.Get(&tableRow{key: key})
	if !found {
		return nil, false, nil
	}
	return row.record, true, nil
}

func (t *table) Put(ctx context.Context, record json.RawMessage) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	undo, err := t.applyPut(record)
	if err != nil {
		return err
	}
	if t.journal != nil {
		if err := t.journal.appendPut(record); err != nil {
			undo()
			return fmt.Errorf("journal: %w", err)
		}
	}
	return nil
}

func (t *table) PutAll(ctx context.Context, records []json.RawMessage) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	undos := []func(){}
	rollback := func() {
		for i := len(undos) - 1; i >= 0; i-- {
			undos[i]()
		}
	}

	for _, record := range records {
		undo, err := t.applyPut(record)
		if err != nil {
			rollback()
			return err
		}
		undos = append(undos, undo)
	}

	if t.journal != nil {
		if err := t.journal.appendBatch(records); err != nil {
			rollback()
			return fmt.Errorf("journal: %w", err)
		}
	}
	return nil
}

func (t *table) Delete(ctx context.Context, key string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	undo, existed := t.applyRemove(key)
	if !existed {
		return nil
	}
	if t.journal != nil {
		if err := t.journal.appendRemove(key); err != nil {
			undo()
			return fmt.Errorf("journal: %w", err)
		}
	}
	return nil
}

func (t *table) Clear(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	undo := t.applyClear()
	if t.journal != nil {
		if err := t.journal.appendClear(); err != nil {
			undo()
			return fmt.Errorf("journal: %w", err)
		}
	}
	return nil
}

func (t *table) Count(ctx context.Context) (int64, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return int64(t.rows.Len()), nil
}

// Ascend walks all records in primary key order. f must not write back
// to the store.
func (t *table) Ascend(ctx context.Context, f func(key string, record json.RawMessage) bool) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	t.rows.Ascend(func(row *tableRow) bool {
		return f(row.key, row.record)
	})
	return nil
}

func (t *table) ByIndex(ctx context.Context, name string, q *IndexQuery, f func(key string, record json.RawMessage) bool) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	index, exists := t.indexes[name]
	if !exists {
		return fmt.Errorf("index '%s': %w", name, ErrorIndexNotFound)
	}

	return index.traverse(q, func(pk string) bool {
		row, found := t.rows.Get(&tableRow{key: pk})
		if !found {
			return true
		}
		return f(row.key, row.record)
	})
}

func (t *table) Indexes() []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return utils.GetKeys(t.indexes)
}
