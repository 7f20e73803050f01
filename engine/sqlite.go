package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // database/sql driver
)

// SQLiteEngine persists each database as a single sqlite file. Records
// and index entries live in shared tables keyed by store name, writes
// run inside sqlite transactions. Index keys are stored split in two
// nullable columns (knum, kstr) so that numbers order before strings.
type SQLiteEngine struct {
	dir string
}

func NewSQLiteEngine(dir string) *SQLiteEngine {
	return &SQLiteEngine{dir: dir}
}

func (e *SQLiteEngine) Open(ctx context.Context, schema Schema) (DB, error) {

	if err := os.MkdirAll(e.dir, 0777); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(e.dir, schema.Database+".db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	storedVersion := 0
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&storedVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("read user_version: %w", err)
	}
	if storedVersion > schema.Version {
		db.Close()
		return nil, fmt.Errorf("database '%s' is at version %d, requested %d: %w",
			schema.Database, storedVersion, schema.Version, ErrorVersionConflict)
	}

	if storedVersion < schema.Version {
		if err := upgrade(ctx, db, schema); err != nil {
			db.Close()
			return nil, err
		}
	}

	stores, err := loadStores(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteDB{db: db, stores: stores}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stores (
			name TEXT PRIMARY KEY,
			key_field TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS store_indexes (
			store TEXT NOT NULL,
			name TEXT NOT NULL,
			field TEXT NOT NULL,
			is_unique INTEGER NOT NULL,
			multi_entry INTEGER NOT NULL,
			PRIMARY KEY (store, name)
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			store TEXT NOT NULL,
			key TEXT NOT NULL,
			record BLOB NOT NULL,
			PRIMARY KEY (store, key)
		)`,
		`CREATE TABLE IF NOT EXISTS index_entries (
			store TEXT NOT NULL,
			idx TEXT NOT NULL,
			knum REAL,
			kstr TEXT,
			pkey TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS index_entries_traverse
			ON index_entries (store, idx, knum, kstr, pkey)`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// upgrade creates the stores and indexes of schema that do not exist
// yet, backfills the new indexes and bumps user_version, all in one
// transaction.
func upgrade(ctx context.Context, db *sql.DB, schema Schema) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upgrade: %w", err)
	}
	defer tx.Rollback()

	for _, storeSchema := range schema.Stores {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO stores (name, key_field) VALUES (?, ?) ON CONFLICT (name) DO NOTHING",
			storeSchema.Name, storeSchema.KeyField)
		if err != nil {
			return fmt.Errorf("create store '%s': %w", storeSchema.Name, err)
		}

		for _, indexSchema := range storeSchema.Indexes {
			existing := 0
			err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM store_indexes WHERE store = ? AND name = ?",
				storeSchema.Name, indexSchema.Name).Scan(&existing)
			if err != nil {
				return fmt.Errorf("check index '%s': %w", indexSchema.Name, err)
			}
			if existing > 0 {
				continue
			}
			if err := createSQLiteIndex(ctx, tx, storeSchema, indexSchema); err != nil {
				return err
			}
		}
	}

	// PRAGMA does not take placeholders.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schema.Version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return tx.Commit()
}

func createSQLiteIndex(ctx context.Context, tx *sql.Tx, storeSchema StoreSchema, indexSchema IndexSchema) error {

	_, err := tx.ExecContext(ctx,
		"INSERT INTO store_indexes (store, name, field, is_unique, multi_entry) VALUES (?, ?, ?, ?, ?)",
		storeSchema.Name, indexSchema.Name, indexSchema.Field, indexSchema.Unique, indexSchema.MultiEntry)
	if err != nil {
		return fmt.Errorf("create index '%s': %w", indexSchema.Name, err)
	}

	// Backfill from the existing records. Collect them first, the
	// single connection cannot run inserts while a query is open.
	type storedRecord struct {
		key    string
		record []byte
	}
	records := []storedRecord{}

	rows, err := tx.QueryContext(ctx,
		"SELECT key, record FROM records WHERE store = ?", storeSchema.Name)
	if err != nil {
		return fmt.Errorf("backfill index '%s': %w", indexSchema.Name, err)
	}
	for rows.Next() {
		r := storedRecord{}
		if err := rows.Scan(&r.key, &r.record); err != nil {
			rows.Close()
			return fmt.Errorf("backfill index '%s': %w", indexSchema.Name, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("backfill index '%s': %w", indexSchema.Name, err)
	}
	rows.Close()

	for _, r := range records {
		if err := insertIndexEntries(ctx, tx, storeSchema.Name, indexSchema, r.key, r.record); err != nil {
			return fmt.Errorf("backfill index '%s': %w", indexSchema.Name, err)
		}
	}

	return nil
}

func insertIndexEntries(ctx context.Context, tx *sql.Tx, store string, indexSchema IndexSchema, pkey string, record json.RawMessage) error {
	for _, k := range indexKeys(record, indexSchema) {
		knum, kstr := splitKey(k)

		if indexSchema.Unique {
			other := ""
			err := tx.QueryRowContext(ctx,
				"SELECT pkey FROM index_entries WHERE store = ? AND idx = ? AND knum IS ? AND kstr IS ? AND pkey != ? LIMIT 1",
				store, indexSchema.Name, knum, kstr, pkey).Scan(&other)
			if err == nil {
				return fmt.Errorf("index '%s' key '%v' already held by '%s': %w",
					indexSchema.Name, k, other, ErrorUniqueConflict)
			}
			if err != sql.ErrNoRows {
				return fmt.Errorf("check index '%s': %w", indexSchema.Name, err)
			}
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO index_entries (store, idx, knum, kstr, pkey) VALUES (?, ?, ?, ?, ?)",
			store, indexSchema.Name, knum, kstr, pkey)
		if err != nil {
			return fmt.Errorf("insert index entry: %w", err)
		}
	}
	return nil
}

func splitKey(k any) (knum, kstr any) {
	switch v := k.(type) {
	case float64:
		return v, nil
	case string:
		return nil, v
	}
	return nil, nil
}

func loadStores(ctx context.Context, db *sql.DB) (map[string]*StoreSchema, error) {
	stores := map[string]*StoreSchema{}

	rows, err := db.QueryContext(ctx, "SELECT name, key_field FROM stores")
	if err != nil {
		return nil, fmt.Errorf("load stores: %w", err)
	}
	for rows.Next() {
		storeSchema := &StoreSchema{}
		if err := rows.Scan(&storeSchema.Name, &storeSchema.KeyField); err != nil {
			rows.Close()
			return nil, fmt.Errorf("load stores: %w", err)
		}
		stores[storeSchema.Name] = storeSchema
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("load stores: %w", err)
	}
	rows.Close()

	rows, err = db.QueryContext(ctx,
		"SELECT store, name, field, is_unique, multi_entry FROM store_indexes ORDER BY store, name")
	if err != nil {
		return nil, fmt.Errorf("load indexes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		store := ""
		indexSchema := IndexSchema{}
		err := rows.Scan(&store, &indexSchema.Name, &indexSchema.Field, &indexSchema.Unique, &indexSchema.MultiEntry)
		if err != nil {
			return nil, fmt.Errorf("load indexes: %w", err)
		}
		if storeSchema, exists := stores[store]; exists {
			storeSchema.Indexes = append(storeSchema.Indexes, indexSchema)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load indexes: %w", err)
	}

	return stores, nil
}

type sqliteDB struct {
	db     *sql.DB
	stores map[string]*StoreSchema
}

func (s *sqliteDB) Store(name string) (Store, error) {
	storeSchema, exists := s.stores[name]
	if !exists {
		return nil, fmt.Errorf("store '%s': %w", name, ErrorStoreNotFound)
	}
	return &sqliteStore{db: s.db, schema: *storeSchema}, nil
}

func (s *sqliteDB) Close() error {
	return s.db.Close()
}

type sqliteStore struct {
	db     *sql.DB
	schema StoreSchema
}

func (s *sqliteStore) inTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) putTx(ctx context.Context, tx *sql.Tx, record json.RawMessage) error {
	key, err := recordKey(record, s.schema.KeyField)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO records (store, key, record) VALUES (?, ?, ?) ON CONFLICT (store, key) DO UPDATE SET record = excluded.record",
		s.schema.Name, key, []byte(record))
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM index_entries WHERE store = ? AND pkey = ?", s.schema.Name, key)
	if err != nil {
		return fmt.Errorf("drop index entries: %w", err)
	}

	for _, indexSchema := range s.schema.Indexes {
		if err := insertIndexEntries(ctx, tx, s.schema.Name, indexSchema, key, record); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	record := []byte{}
	err := s.db.QueryRowContext(ctx,
		"SELECT record FROM records WHERE store = ? AND key = ?",
		s.schema.Name, key).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get record: %w", err)
	}
	return record, true, nil
}

func (s *sqliteStore) Put(ctx context.Context, record json.RawMessage) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.putTx(ctx, tx, record)
	})
}

func (s *sqliteStore) PutAll(ctx context.Context, records []json.RawMessage) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			if err := s.putTx(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM records WHERE store = ? AND key = ?", s.schema.Name, key)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"DELETE FROM index_entries WHERE store = ? AND pkey = ?", s.schema.Name, key)
		if err != nil {
			return fmt.Errorf("drop index entries: %w", err)
		}
		return nil
	})
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM records WHERE store = ?", s.schema.Name)
		if err != nil {
			return fmt.Errorf("clear records: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"DELETE FROM index_entries WHERE store = ?", s.schema.Name)
		if err != nil {
			return fmt.Errorf("clear index entries: %w", err)
		}
		return nil
	})
}

func (s *sqliteStore) Count(ctx context.Context) (int64, error) {
	count := int64(0)
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE store = ?", s.schema.Name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// Ascend walks all records in primary key order. f must not write back
// to the store, the connection is busy serving the traversal.
func (s *sqliteStore) Ascend(ctx context.Context, f func(key string, record json.RawMessage) bool) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, record FROM records WHERE store = ? ORDER BY key", s.schema.Name)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		key := ""
		record := []byte{}
		if err := rows.Scan(&key, &record); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		if !f(key, record) {
			break
		}
	}
	return rows.Err()
}

func (s *sqliteStore) ByIndex(ctx context.Context, index string, q *IndexQuery, f func(key string, record json.RawMessage) bool) error {
	var indexSchema *IndexSchema
	for i := range s.schema.Indexes {
		if s.schema.Indexes[i].Name == index {
			indexSchema = &s.schema.Indexes[i]
			break
		}
	}
	if indexSchema == nil {
		return fmt.Errorf("index '%s': %w", index, ErrorIndexNotFound)
	}

	query := `SELECT e.pkey, r.record
		FROM index_entries e
		JOIN records r ON r.store = e.store AND r.key = e.pkey
		WHERE e.store = ? AND e.idx = ?`
	args := []any{s.schema.Name, index}

	var from, to any
	reverse := false
	if q != nil {
		reverse = q.Reverse
		if q.Value != nil {
			k, ok := normalizeKey(q.Value)
			if !ok {
				return fmt.Errorf("index '%s': unsupported key type %T", index, q.Value)
			}
			from, to = k, k
		} else {
			if q.From != nil {
				k, ok := normalizeKey(q.From)
				if !ok {
					return fmt.Errorf("index '%s': unsupported key type %T", index, q.From)
				}
				from = k
			}
			if q.To != nil {
				k, ok := normalizeKey(q.To)
				if !ok {
					return fmt.Errorf("index '%s': unsupported key type %T", index, q.To)
				}
				to = k
			}
		}
	}

	// Numbers order before strings: a numeric lower bound keeps every
	// string entry, a string upper bound keeps every numeric entry.
	if from != nil {
		if knum, ok := from.(float64); ok {
			query += " AND (e.knum >= ? OR e.knum IS NULL)"
			args = append(args, knum)
		} else {
			query += " AND e.kstr >= ?"
			args = append(args, from)
		}
	}
	if to != nil {
		if knum, ok := to.(float64); ok {
			query += " AND e.knum <= ?"
			args = append(args, knum)
		} else {
			query += " AND (e.kstr <= ? OR e.kstr IS NULL)"
			args = append(args, to)
		}
	}

	if reverse {
		query += " ORDER BY (e.knum IS NULL) DESC, e.knum DESC, e.kstr DESC, e.pkey DESC"
	} else {
		query += " ORDER BY (e.knum IS NULL), e.knum, e.kstr, e.pkey"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("traverse index '%s': %w", index, err)
	}
	defer rows.Close()

	for rows.Next() {
		key := ""
		record := []byte{}
		if err := rows.Scan(&key, &record); err != nil {
			return fmt.Errorf("scan index entry: %w", err)
		}
		if !f(key, record) {
			break
		}
	}
	return rows.Err()
}

func (s *sqliteStore) Indexes() []string {
	names := make([]string, 0, len(s.schema.Indexes))
	for _, indexSchema := range s.schema.Indexes {
		names = append(names, indexSchema.Name)
	}
	sort.Strings(names)
	return names
}
