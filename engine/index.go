package engine

import (
	"encoding/json"
	"fmt"

	"github.com/google/btree"
)

// pkMax sorts after any primary key, it closes inclusive upper bounds.
const pkMax = "\xff\xff\xff\xff"

// indexEntry is one key of one record inside an index. The same index
// key can appear many times with different primary keys unless the
// index is unique.
type indexEntry struct {
	key any
	pk  string
}

func lessEntries(a, b indexEntry) bool {
	if c := compareKeys(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.pk < b.pk
}

type tableIndex struct {
	schema  IndexSchema
	entries *btree.BTreeG[indexEntry]
}

func newTableIndex(schema IndexSchema) *tableIndex {
	return &tableIndex{
		schema:  schema,
		entries: btree.NewG(32, lessEntries),
	}
}

func (i *tableIndex) insert(e indexEntry) {
	i.entries.ReplaceOrInsert(e)
}

func (i *tableIndex) delete(e indexEntry) {
	i.entries.Delete(e)
}

// taken returns the primary key holding index key k, if any record
// other than pk holds it.
func (i *tableIndex) taken(k any, pk string) (string, bool) {
	other := ""
	found := false
	i.entries.AscendGreaterOrEqual(indexEntry{key: k, pk: ""}, func(e indexEntry) bool {
		if compareKeys(e.key, k) != 0 {
			return false
		}
		if e.pk != pk {
			other = e.pk
			found = true
		}
		return !found
	})
	return other, found
}

// addRecord inserts the index entries of a record and returns them so
// the caller can undo the insertion. Unique violations leave the index
// untouched.
func (i *tableIndex) addRecord(record json.RawMessage, pk string) ([]indexEntry, error) {
	keys := indexKeys(record, i.schema)
	if i.schema.Unique {
		for _, k := range keys {
			if other, conflict := i.taken(k, pk); conflict {
				return nil, fmt.Errorf("index '%s' key '%v' already held by '%s': %w", i.schema.Name, k, other, ErrorUniqueConflict)
			}
		}
	}
	inserted := make([]indexEntry, 0, len(keys))
	for _, k := range keys {
		e := indexEntry{key: k, pk: pk}
		i.insert(e)
		inserted = append(inserted, e)
	}
	return inserted, nil
}

// removeRecord deletes the index entries of a record and returns them
// so the caller can undo the removal.
func (i *tableIndex) removeRecord(record json.RawMessage, pk string) []indexEntry {
	keys := indexKeys(record, i.schema)
	removed := make([]indexEntry, 0, len(keys))
	for _, k := range keys {
		e := indexEntry{key: k, pk: pk}
		if i.entries.Has(e) {
			i.delete(e)
			removed = append(removed, e)
		}
	}
	return removed
}

// traverse walks the index entries selected by q in key order, calling
// f with each primary key until f returns false.
func (i *tableIndex) traverse(q *IndexQuery, f func(pk string) bool) error {
	var from, to any
	reverse := false
	if q != nil {
		reverse = q.Reverse
		if q.Value != nil {
			k, ok := normalizeKey(q.Value)
			if !ok {
				return fmt.Errorf("index '%s': unsupported key type %T", i.schema.Name, q.Value)
			}
			from, to = k, k
		} else {
			if q.From != nil {
				k, ok := normalizeKey(q.From)
				if !ok {
					return fmt.Errorf("index '%s': unsupported key type %T", i.schema.Name, q.From)
				}
				from = k
			}
			if q.To != nil {
				k, ok := normalizeKey(q.To)
				if !ok {
					return fmt.Errorf("index '%s': unsupported key type %T", i.schema.Name, q.To)
				}
				to = k
			}
		}
	}

	iterator := func(e indexEntry) bool {
		if !reverse && to != nil && compareKeys(e.key, to) > 0 {
			return false
		}
		if reverse && from != nil && compareKeys(e.key, from) < 0 {
			return false
		}
		return f(e.pk)
	}

	if reverse {
		if to == nil {
			i.entries.Descend(iterator)
		} else {
			i.entries.DescendLessOrEqual(indexEntry{key: to, pk: pkMax}, iterator)
		}
		return nil
	}
	if from == nil {
		i.entries.Ascend(iterator)
	} else {
		i.entries.AscendGreaterOrEqual(indexEntry{key: from, pk: ""}, iterator)
	}
	return nil
}
