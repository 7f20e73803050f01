// Package store exposes typed record stores on top of an engine
// database. A Store marshals values of one Go type to JSON records,
// keeps them in a named store of a versioned database and posts a ping
// to its broadcast channel after every successful write, so other
// holders of the same channel can refresh.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fulldump/snipdb/broadcast"
	"github.com/fulldump/snipdb/engine"
)

var ErrorNotFound = errors.New("record not found")

// Config describes a typed store: where it lives, how its records are
// keyed and indexed and which fields participate in substring search.
type Config struct {
	Database     string
	Version      int
	Name         string
	KeyField     string
	Indexes      []engine.IndexSchema
	SearchFields []string
}

type Store[T any] struct {
	config   Config
	registry *engine.Registry
	channel  *broadcast.Channel
}

// New builds a Store. The database is opened through the registry on
// first use. A nil hub disables change notifications, writes still work
// and OnChange listeners are simply never called.
func New[T any](config Config, registry *engine.Registry, hub *broadcast.Hub) *Store[T] {
	s := &Store[T]{
		config:   config,
		registry: registry,
	}
	if hub != nil {
		s.channel = hub.Channel(broadcast.Name(config.Database, config.Name))
	}
	return s
}

func (s *Store[T]) open(ctx context.Context) (engine.Store, error) {
	db, err := s.registry.Open(ctx, engine.Schema{
		Database: s.config.Database,
		Version:  s.config.Version,
		Stores: []engine.StoreSchema{{
			Name:     s.config.Name,
			KeyField: s.config.KeyField,
			Indexes:  s.config.Indexes,
		}},
	})
	if err != nil {
		return nil, err
	}
	return db.Store(s.config.Name)
}

// ListOptions control ListAll ordering. OrderBy is a field name, empty
// leaves the records in primary key order. Descending is the default
// direction.
type ListOptions struct {
	OrderBy string
	Asc     bool
}

func (s *Store[T]) ListAll(ctx context.Context, options *ListOptions) ([]T, error) {
	records, err := s.listRaw(ctx)
	if err != nil {
		return nil, err
	}
	if options != nil && options.OrderBy != "" {
		sortRecords(records, options.OrderBy, options.Asc)
	}
	return decodeAll[T](records)
}

func (s *Store[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var item T
	st, err := s.open(ctx)
	if err != nil {
		return item, false, err
	}

	record, found, err := st.Get(ctx, key)
	if err != nil || !found {
		return item, false, err
	}
	if err := json.Unmarshal(record, &item); err != nil {
		return item, false, fmt.Errorf("decode record: %w", err)
	}
	return item, true, nil
}

func (s *Store[T]) Put(ctx context.Context, item T) error {
	st, err := s.open(ctx)
	if err != nil {
		return err
	}

	record, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := st.Put(ctx, record); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

// UpsertMany writes all items in one batch. Either every record lands
// or none does, and a single change notification fires at the end.
func (s *Store[T]) UpsertMany(ctx context.Context, items []T) error {
	st, err := s.open(ctx)
	if err != nil {
		return err
	}

	records := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		record, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		records = append(records, record)
	}
	if err := st.PutAll(ctx, records); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, key string) error {
	st, err := s.open(ctx)
	if err != nil {
		return err
	}
	if err := st.Delete(ctx, key); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

func (s *Store[T]) Clear(ctx context.Context) error {
	st, err := s.open(ctx)
	if err != nil {
		return err
	}
	if err := st.Clear(ctx); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

func (s *Store[T]) Count(ctx context.Context) (int64, error) {
	st, err := s.open(ctx)
	if err != nil {
		return 0, err
	}
	return st.Count(ctx)
}

// Patch applies a partial update to the record at key and returns the
// patched value. The key field cannot be patched.
func (s *Store[T]) Patch(ctx context.Context, key string, fields map[string]any) (T, error) {
	var item T
	st, err := s.open(ctx)
	if err != nil {
		return item, err
	}

	record, found, err := st.Get(ctx, key)
	if err != nil {
		return item, err
	}
	if !found {
		return item, fmt.Errorf("key '%s': %w", key, ErrorNotFound)
	}

	for field, value := range fields {
		record, err = sjson.SetBytes(record, field, value)
		if err != nil {
			return item, fmt.Errorf("patch field '%s': %w", field, err)
		}
	}
	if patched := gjson.GetBytes(record, s.config.KeyField).String(); patched != key {
		return item, fmt.Errorf("cannot patch the key field '%s'", s.config.KeyField)
	}

	if err := json.Unmarshal(record, &item); err != nil {
		return item, fmt.Errorf("decode record: %w", err)
	}
	if err := st.Put(ctx, record); err != nil {
		return item, err
	}
	s.notifyChange()
	return item, nil
}

func (s *Store[T]) notifyChange() {
	if s.channel == nil {
		return
	}
	s.channel.Post(broadcast.Ping)
}

// OnChange registers a listener called when any other holder of this
// store's channel writes. A store never hears its own writes. The
// returned function unsubscribes the listener.
func (s *Store[T]) OnChange(listener func()) (unsubscribe func()) {
	if s.channel == nil {
		return func() {}
	}
	return s.channel.Listen(func(message []byte) {
		listener()
	})
}

// ChannelName returns the broadcast channel name of this store.
func (s *Store[T]) ChannelName() string {
	return broadcast.Name(s.config.Database, s.config.Name)
}

func (s *Store[T]) listRaw(ctx context.Context) ([]json.RawMessage, error) {
	st, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	records := []json.RawMessage{}
	err = st.Ascend(ctx, func(key string, record json.RawMessage) bool {
		records = append(records, record)
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func sortRecords(records []json.RawMessage, field string, asc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		c := compareResults(gjson.GetBytes(records[i], field), gjson.GetBytes(records[j], field))
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareResults(a, b gjson.Result) int {
	if a.Type == gjson.Number && b.Type == gjson.Number {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	}
	return strings.Compare(a.String(), b.String())
}

func decodeAll[T any](records []json.RawMessage) ([]T, error) {
	items := make([]T, 0, len(records))
	for _, record := range records {
		var item T
		if err := json.Unmarshal(record, &item); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}
