package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/fulldump/biff"
)

func forEachEngine(t *testing.T, f func(t *testing.T, e Engine)) {
	t.Run("memory", func(t *testing.T) {
		f(t, NewMemoryEngine())
	})
	t.Run("file", func(t *testing.T) {
		f(t, NewFileEngine(t.TempDir()))
	})
	t.Run("sqlite", func(t *testing.T) {
		f(t, NewSQLiteEngine(t.TempDir()))
	})
}

func testSchema(version int) Schema {
	return Schema{
		Database: "testdb",
		Version:  version,
		Stores: []StoreSchema{
			{
				Name:     "items",
				KeyField: "id",
				Indexes: []IndexSchema{
					{Name: "by_title", Field: "title"},
					{Name: "by_updatedAt", Field: "updatedAt"},
					{Name: "by_tags", Field: "tags", MultiEntry: true},
				},
			},
		},
	}
}

func openStore(t *testing.T, e Engine, schema Schema) (DB, Store) {
	t.Helper()
	db, err := e.Open(context.Background(), schema)
	AssertNil(err)
	st, err := db.Store(schema.Stores[0].Name)
	AssertNil(err)
	return db, st
}

func collectKeys(t *testing.T, st Store) []string {
	t.Helper()
	keys := []string{}
	err := st.Ascend(context.Background(), func(key string, record json.RawMessage) bool {
		keys = append(keys, key)
		return true
	})
	AssertNil(err)
	return keys
}

func collectIndex(t *testing.T, st Store, index string, q *IndexQuery) []string {
	t.Helper()
	keys := []string{}
	err := st.ByIndex(context.Background(), index, q, func(key string, record json.RawMessage) bool {
		keys = append(keys, key)
		return true
	})
	AssertNil(err)
	return keys
}

func TestPutGetDelete(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, st := openStore(t, e, testSchema(1))
		defer db.Close()

		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","title":"one"}`)))

		record, found, err := st.Get(ctx, "1")
		AssertNil(err)
		AssertTrue(found)
		AssertEqual(string(record), `{"id":"1","title":"one"}`)

		// Put with the same key replaces
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","title":"uno"}`)))
		record, found, _ = st.Get(ctx, "1")
		AssertTrue(found)
		AssertEqual(string(record), `{"id":"1","title":"uno"}`)

		_, found, err = st.Get(ctx, "nope")
		AssertNil(err)
		AssertFalse(found)

		AssertNil(st.Delete(ctx, "1"))
		_, found, _ = st.Get(ctx, "1")
		AssertFalse(found)

		// Deleting a missing key is a noop
		AssertNil(st.Delete(ctx, "1"))
	})
}

func TestPutMissingKey(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, st := openStore(t, e, testSchema(1))
		defer db.Close()

		AssertTrue(errors.Is(st.Put(ctx, json.RawMessage(`{"title":"no id"}`)), ErrorMissingKey))
		AssertTrue(errors.Is(st.Put(ctx, json.RawMessage(`{"id":""}`)), ErrorMissingKey))
		AssertTrue(errors.Is(st.Put(ctx, json.RawMessage(`{"id":true}`)), ErrorMissingKey))

		count, _ := st.Count(ctx)
		AssertEqual(count, int64(0))
	})
}

func TestAscendAndCount(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, st := openStore(t, e, testSchema(1))
		defer db.Close()

		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"b"}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"c"}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"a"}`)))

		AssertEqual(collectKeys(t, st), []string{"a", "b", "c"})

		count, err := st.Count(ctx)
		AssertNil(err)
		AssertEqual(count, int64(3))
	})
}

func TestClear(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, st := openStore(t, e, testSchema(1))
		defer db.Close()

		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","title":"one"}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"2","title":"two"}`)))
		AssertNil(st.Clear(ctx))

		count, _ := st.Count(ctx)
		AssertEqual(count, int64(0))
		_, found, _ := st.Get(ctx, "1")
		AssertFalse(found)
		AssertEqual(collectIndex(t, st, "by_title", nil), []string{})

		// The store keeps working after a clear
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"3","title":"three"}`)))
		AssertEqual(collectIndex(t, st, "by_title", nil), []string{"3"})
	})
}

func TestIndexTraverse(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, st := openStore(t, e, testSchema(1))
		defer db.Close()

		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","title":"banana","updatedAt":10}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"2","title":"apple","updatedAt":30}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"3","title":"cherry","updatedAt":20}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"4"}`))) // no title, not indexed

		AssertEqual(collectIndex(t, st, "by_title", nil), []string{"2", "1", "3"})
		AssertEqual(collectIndex(t, st, "by_title", &IndexQuery{Reverse: true}), []string{"3", "1", "2"})
		AssertEqual(collectIndex(t, st, "by_title", &IndexQuery{Value: "banana"}), []string{"1"})
		AssertEqual(collectIndex(t, st, "by_title", &IndexQuery{Value: "nope"}), []string{})

		// Bounds are inclusive
		AssertEqual(collectIndex(t, st, "by_updatedAt", &IndexQuery{From: 10, To: 20}), []string{"1", "3"})
		AssertEqual(collectIndex(t, st, "by_updatedAt", &IndexQuery{From: 15}), []string{"3", "2"})
		AssertEqual(collectIndex(t, st, "by_updatedAt", &IndexQuery{To: 15}), []string{"1"})
		AssertEqual(collectIndex(t, st, "by_updatedAt", &IndexQuery{Reverse: true}), []string{"2", "3", "1"})
		AssertEqual(collectIndex(t, st, "by_updatedAt", &IndexQuery{To: 20, Reverse: true}), []string{"3", "1"})

		err := st.ByIndex(ctx, "by_nope", nil, func(key string, record json.RawMessage) bool { return true })
		AssertTrue(errors.Is(err, ErrorIndexNotFound))
	})
}

func TestIndexMixedKeyTypes(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, st := openStore(t, e, testSchema(1))
		defer db.Close()

		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"s","title":"apple"}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"n","title":3}`)))

		// Numbers order before strings
		AssertEqual(collectIndex(t, st, "by_title", nil), []string{"n", "s"})
		AssertEqual(collectIndex(t, st, "by_title", &IndexQuery{Reverse: true}), []string{"s", "n"})
	})
}

func TestMultiEntryIndex(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, st := openStore(t, e, testSchema(1))
		defer db.Close()

		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","tags":["go","db","go"]}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"2","tags":["db"]}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"3","tags":[]}`)))

		AssertEqual(collectIndex(t, st, "by_tags", &IndexQuery{Value: "go"}), []string{"1"})
		AssertEqual(collectIndex(t, st, "by_tags", &IndexQuery{Value: "db"}), []string{"1", "2"})

		// Duplicated elements count once
		AssertEqual(collectIndex(t, st, "by_tags", nil), []string{"1", "2", "1"})

		// Removing a tag drops its entry
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","tags":["go"]}`)))
		AssertEqual(collectIndex(t, st, "by_tags", &IndexQuery{Value: "db"}), []string{"2"})
	})
}

func TestUniqueIndex(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		schema := Schema{
			Database: "uniqdb",
			Version:  1,
			Stores: []StoreSchema{{
				Name:     "users",
				KeyField: "id",
				Indexes:  []IndexSchema{{Name: "by_email", Field: "email", Unique: true}},
			}},
		}
		db, st := openStore(t, e, schema)
		defer db.Close()

		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"u1","email":"a@example.com"}`)))

		err := st.Put(ctx, json.RawMessage(`{"id":"u2","email":"a@example.com"}`))
		AssertTrue(errors.Is(err, ErrorUniqueConflict))
		_, found, _ := st.Get(ctx, "u2")
		AssertFalse(found)

		// Replacing a record with its own unique key is fine
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"u1","email":"a@example.com","name":"Ana"}`)))

		// A conflict in the middle of a batch rolls the whole batch back
		err = st.PutAll(ctx, []json.RawMessage{
			json.RawMessage(`{"id":"u3","email":"b@example.com"}`),
			json.RawMessage(`{"id":"u4","email":"a@example.com"}`),
		})
		AssertTrue(errors.Is(err, ErrorUniqueConflict))
		_, found, _ = st.Get(ctx, "u3")
		AssertFalse(found)
		count, _ := st.Count(ctx)
		AssertEqual(count, int64(1))
	})
}

func TestPutAll(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, st := openStore(t, e, testSchema(1))
		defer db.Close()

		AssertNil(st.PutAll(ctx, []json.RawMessage{
			json.RawMessage(`{"id":"1","title":"one"}`),
			json.RawMessage(`{"id":"2","title":"two"}`),
			json.RawMessage(`{"id":"1","title":"uno"}`),
		}))

		count, _ := st.Count(ctx)
		AssertEqual(count, int64(2))
		record, _, _ := st.Get(ctx, "1")
		AssertEqual(string(record), `{"id":"1","title":"uno"}`)
	})
}

func TestUpgradeAddsIndex(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()

		v1 := Schema{
			Database: "appdb",
			Version:  1,
			Stores: []StoreSchema{{
				Name:     "items",
				KeyField: "id",
				Indexes:  []IndexSchema{{Name: "by_title", Field: "title"}},
			}},
		}

		db, err := e.Open(ctx, v1)
		AssertNil(err)
		st, _ := db.Store("items")
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","title":"one","tags":["go","db"]}`)))
		AssertNil(st.Put(ctx, json.RawMessage(`{"id":"2","title":"two","tags":["go"]}`)))
		AssertNil(db.Close())

		v2 := Schema{
			Database: "appdb",
			Version:  2,
			Stores: []StoreSchema{{
				Name:     "items",
				KeyField: "id",
				Indexes: []IndexSchema{
					{Name: "by_title", Field: "title"},
					{Name: "by_tags", Field: "tags", MultiEntry: true},
				},
			}},
		}

		db, err = e.Open(ctx, v2)
		AssertNil(err)
		st, _ = db.Store("items")

		AssertEqual(st.Indexes(), []string{"by_tags", "by_title"})
		AssertEqual(collectIndex(t, st, "by_tags", &IndexQuery{Value: "go"}), []string{"1", "2"})
		AssertNil(db.Close())

		// Reopening at the stored version is not an upgrade
		db, err = e.Open(ctx, v2)
		AssertNil(err)
		st, _ = db.Store("items")
		AssertEqual(collectIndex(t, st, "by_tags", &IndexQuery{Value: "db"}), []string{"1"})
		AssertNil(db.Close())
	})
}

func TestVersionDowngradeRefused(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		db, err := e.Open(ctx, testSchema(2))
		AssertNil(err)
		AssertNil(db.Close())

		_, err = e.Open(ctx, testSchema(1))
		AssertTrue(errors.Is(err, ErrorVersionConflict))
	})
}

func TestStoreNotFound(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		db, err := e.Open(context.Background(), testSchema(1))
		AssertNil(err)
		defer db.Close()

		_, err = db.Store("nope")
		AssertTrue(errors.Is(err, ErrorStoreNotFound))
	})
}

func TestFilePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	schema := testSchema(1)

	e := NewFileEngine(dir)
	db, st := openStore(t, e, schema)
	AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","title":"one","updatedAt":10}`)))
	AssertNil(st.Put(ctx, json.RawMessage(`{"id":"2","title":"two","updatedAt":20}`)))
	AssertNil(st.Delete(ctx, "2"))
	AssertNil(db.Close())

	db, st = openStore(t, NewFileEngine(dir), schema)
	AssertEqual(collectKeys(t, st), []string{"1"})
	AssertEqual(collectIndex(t, st, "by_title", nil), []string{"1"})
	AssertNil(db.Close())
}

func TestSQLitePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	schema := testSchema(1)

	e := NewSQLiteEngine(dir)
	db, st := openStore(t, e, schema)
	AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","title":"one","tags":["go"]}`)))
	AssertNil(db.Close())

	db, st = openStore(t, NewSQLiteEngine(dir), schema)
	AssertEqual(collectKeys(t, st), []string{"1"})
	AssertEqual(collectIndex(t, st, "by_tags", &IndexQuery{Value: "go"}), []string{"1"})
	AssertNil(db.Close())
}

func TestJournalTornTail(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	schema := testSchema(1)

	e := NewFileEngine(dir)
	db, st := openStore(t, e, schema)
	AssertNil(st.Put(ctx, json.RawMessage(`{"id":"1","title":"one"}`)))
	AssertNil(db.Close())

	// A crash in the middle of a write leaves half a command behind
	filename := filepath.Join(dir, "testdb", "items.journal")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_WRONLY, 0666)
	AssertNil(err)
	f.WriteString(`{"name":"put","uuid":"x","timestamp":1,"payload":{"id":"2"`)
	f.Close()

	db, st = openStore(t, e, schema)
	AssertEqual(collectKeys(t, st), []string{"1"})
	AssertNil(st.Put(ctx, json.RawMessage(`{"id":"3","title":"three"}`)))
	AssertNil(db.Close())

	db, st = openStore(t, e, schema)
	AssertEqual(collectKeys(t, st), []string{"1", "3"})
	AssertNil(db.Close())
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(NewMemoryEngine())

	db1, err := registry.Open(ctx, testSchema(1))
	AssertNil(err)
	db2, err := registry.Open(ctx, testSchema(1))
	AssertNil(err)
	AssertTrue(db1 == db2)

	// The same database cannot be open at two versions at once
	_, err = registry.Open(ctx, testSchema(2))
	AssertTrue(errors.Is(err, ErrorVersionConflict))

	AssertNil(registry.Close())
	AssertNil(registry.Close())

	_, err = registry.Open(ctx, testSchema(1))
	AssertTrue(errors.Is(err, ErrorRegistryClosed))
}
