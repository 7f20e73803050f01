package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/snipdb/broadcast"
	"github.com/fulldump/snipdb/engine"
)

type testRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Code      string   `json:"code"`
	Tags      []string `json:"tags"`
	UpdatedAt int64    `json:"updatedAt"`
}

func testConfig() Config {
	return Config{
		Database: "testdb",
		Version:  1,
		Name:     "records",
		KeyField: "id",
		Indexes: []engine.IndexSchema{
			{Name: "by_title", Field: "title"},
			{Name: "by_updatedAt", Field: "updatedAt"},
			{Name: "by_tags", Field: "tags", MultiEntry: true},
		},
		SearchFields: []string{"title", "code", "tags"},
	}
}

func Environment(f func(newStore func() *Store[testRecord], hub *broadcast.Hub)) {
	registry := engine.NewRegistry(engine.NewMemoryEngine())
	defer registry.Close()

	hub := broadcast.NewHub()
	f(func() *Store[testRecord] {
		return New[testRecord](testConfig(), registry, hub)
	}, hub)
}

func seed(s *Store[testRecord]) {
	ctx := context.Background()
	s.Put(ctx, testRecord{ID: "1", Title: "foo util", Code: "export const a = 1", Tags: []string{"x"}, UpdatedAt: 100})
	s.Put(ctx, testRecord{ID: "2", Title: "bar", Code: "function foo() {}", Tags: []string{"util"}, UpdatedAt: 200})
}

func ids(items []testRecord) []string {
	result := []string{}
	for _, item := range items {
		result = append(result, item.ID)
	}
	return result
}

func TestPutGetDelete(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()

		AssertNil(s.Put(ctx, testRecord{ID: "1", Title: "hello"}))

		item, found, err := s.Get(ctx, "1")
		AssertNil(err)
		AssertTrue(found)
		AssertEqual(item.Title, "hello")

		_, found, err = s.Get(ctx, "nope")
		AssertNil(err)
		AssertFalse(found)

		AssertNil(s.Delete(ctx, "1"))
		_, found, _ = s.Get(ctx, "1")
		AssertFalse(found)

		// Deleting a missing key resolves quietly
		AssertNil(s.Delete(ctx, "1"))
	})
}

func TestListAll(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()
		seed(s)

		items, err := s.ListAll(ctx, nil)
		AssertNil(err)
		AssertEqual(ids(items), []string{"1", "2"})

		// Descending is the default direction
		items, _ = s.ListAll(ctx, &ListOptions{OrderBy: "updatedAt"})
		AssertEqual(ids(items), []string{"2", "1"})

		items, _ = s.ListAll(ctx, &ListOptions{OrderBy: "updatedAt", Asc: true})
		AssertEqual(ids(items), []string{"1", "2"})

		items, _ = s.ListAll(ctx, &ListOptions{OrderBy: "title", Asc: true})
		AssertEqual(ids(items), []string{"2", "1"})
	})
}

func TestSearch(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()
		seed(s)

		// In the title of one record and the code of the other
		items, err := s.Search(ctx, "foo")
		AssertNil(err)
		AssertEqual(ids(items), []string{"1", "2"})

		// In the title of one record and a tag of the other
		items, _ = s.Search(ctx, "util")
		AssertEqual(ids(items), []string{"1", "2"})

		items, _ = s.Search(ctx, "UTIL")
		AssertEqual(ids(items), []string{"1", "2"})

		items, _ = s.Search(ctx, "zzz")
		AssertEqual(ids(items), []string{})

		// Blank lists everything
		items, _ = s.Search(ctx, "   ")
		AssertEqual(ids(items), []string{"1", "2"})
	})
}

func TestFind(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()
		seed(s)

		items, err := s.Find(ctx, map[string]any{"title": "bar"})
		AssertNil(err)
		AssertEqual(ids(items), []string{"2"})

		items, _ = s.Find(ctx, map[string]any{})
		AssertEqual(ids(items), []string{"1", "2"})
	})
}

func TestListByIndex(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()
		seed(s)

		items, err := s.ListByIndex(ctx, "by_updatedAt", nil)
		AssertNil(err)
		AssertEqual(ids(items), []string{"1", "2"})

		items, _ = s.ListByIndex(ctx, "by_updatedAt", &engine.IndexQuery{Reverse: true})
		AssertEqual(ids(items), []string{"2", "1"})

		items, _ = s.ListByIndex(ctx, "by_tags", &engine.IndexQuery{Value: "util"})
		AssertEqual(ids(items), []string{"2"})

		_, err = s.ListByIndex(ctx, "by_nope", nil)
		AssertTrue(errors.Is(err, engine.ErrorIndexNotFound))
	})
}

func TestUpsertMany(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()

		pings := 0
		hub.Channel(s.ChannelName()).Listen(func(message []byte) { pings++ })

		err := s.UpsertMany(ctx, []testRecord{
			{ID: "1", Title: "one"},
			{ID: "2", Title: "two"},
			{ID: "1", Title: "uno"},
		})
		AssertNil(err)

		count, _ := s.Count(ctx)
		AssertEqual(count, int64(2))
		item, _, _ := s.Get(ctx, "1")
		AssertEqual(item.Title, "uno")

		// One notification for the whole batch
		AssertEqual(pings, 1)
	})
}

func TestUpsertManyRollback(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()

		pings := 0
		hub.Channel(s.ChannelName()).Listen(func(message []byte) { pings++ })

		err := s.UpsertMany(ctx, []testRecord{
			{ID: "1", Title: "one"},
			{Title: "missing id"},
		})
		AssertTrue(errors.Is(err, engine.ErrorMissingKey))

		count, _ := s.Count(ctx)
		AssertEqual(count, int64(0))
		AssertEqual(pings, 0)
	})
}

func TestPatch(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()
		seed(s)

		item, err := s.Patch(ctx, "1", map[string]any{"title": "patched", "updatedAt": 300})
		AssertNil(err)
		AssertEqual(item.Title, "patched")
		AssertEqual(item.UpdatedAt, int64(300))

		stored, _, _ := s.Get(ctx, "1")
		AssertEqual(stored.Title, "patched")

		_, err = s.Patch(ctx, "nope", map[string]any{"title": "x"})
		AssertTrue(errors.Is(err, ErrorNotFound))

		_, err = s.Patch(ctx, "1", map[string]any{"id": "2"})
		AssertNotNil(err)
		_, found, _ := s.Get(ctx, "2")
		AssertTrue(found) // seeded record 2 is untouched
		stored, _, _ = s.Get(ctx, "1")
		AssertEqual(stored.ID, "1")
	})
}

func TestOnChange(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		a := newStore()
		b := newStore()

		aHeard := 0
		unsubscribe := a.OnChange(func() { aHeard++ })

		bHeard := 0
		b.OnChange(func() { bHeard++ })

		// a never hears its own writes, b does
		AssertNil(a.Put(ctx, testRecord{ID: "1"}))
		AssertEqual(aHeard, 0)
		AssertEqual(bHeard, 1)

		AssertNil(b.Put(ctx, testRecord{ID: "2"}))
		AssertEqual(aHeard, 1)
		AssertEqual(bHeard, 1)

		AssertNil(b.Delete(ctx, "2"))
		AssertNil(b.Clear(ctx))
		AssertEqual(aHeard, 3)

		unsubscribe()
		AssertNil(b.Put(ctx, testRecord{ID: "3"}))
		AssertEqual(aHeard, 3)
	})
}

func TestChangePayload(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		s := newStore()
		AssertEqual(s.ChannelName(), "testdb::records::changes")

		heard := []string{}
		hub.Channel(s.ChannelName()).Listen(func(message []byte) {
			heard = append(heard, string(message))
		})

		AssertNil(s.Put(context.Background(), testRecord{ID: "1"}))
		AssertEqual(heard, []string{`{"t":"changed"}`})
	})
}

func TestNilHubDisablesNotifications(t *testing.T) {
	registry := engine.NewRegistry(engine.NewMemoryEngine())
	defer registry.Close()

	s := New[testRecord](testConfig(), registry, nil)
	ctx := context.Background()

	called := false
	unsubscribe := s.OnChange(func() { called = true })

	AssertNil(s.Put(ctx, testRecord{ID: "1"}))
	item, found, err := s.Get(ctx, "1")
	AssertNil(err)
	AssertTrue(found)
	AssertEqual(item.ID, "1")
	AssertFalse(called)
	unsubscribe()
}

func TestExportImportRoundTrip(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()
		seed(s)

		data, err := s.ExportJSON(ctx)
		AssertNil(err)

		envelope := map[string]any{}
		AssertNil(json.Unmarshal(data, &envelope))
		AssertEqual(envelope["v"], float64(1))
		AssertTrue(envelope["exportedAt"].(float64) > 0)
		AssertEqual(len(envelope["items"].([]any)), 2)

		AssertNil(s.Clear(ctx))
		AssertNil(s.ImportJSON(ctx, data))

		items, _ := s.ListAll(ctx, nil)
		AssertEqual(ids(items), []string{"1", "2"})
	})
}

func TestImportBareArray(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()

		AssertNil(s.ImportJSON(ctx, []byte(`[{"id":"1","title":"one"},{"id":"2","title":"two"}]`)))

		items, _ := s.ListAll(ctx, nil)
		AssertEqual(ids(items), []string{"1", "2"})
	})
}

func TestImportMalformed(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()
		seed(s)

		pings := 0
		hub.Channel(s.ChannelName()).Listen(func(message []byte) { pings++ })

		for _, payload := range []string{
			`{"v":1,"items":{"not":"an array"}}`,
			`{"v":1}`,
			`"just a string"`,
			`{broken`,
		} {
			err := s.ImportJSON(ctx, []byte(payload))
			AssertTrue(errors.Is(err, ErrorImport))
		}

		// Nothing was written, nothing was notified
		count, _ := s.Count(ctx)
		AssertEqual(count, int64(2))
		AssertEqual(pings, 0)
	})
}

func TestImportEmptyItems(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()

		pings := 0
		hub.Channel(s.ChannelName()).Listen(func(message []byte) { pings++ })

		// An empty batch still commits and still notifies
		AssertNil(s.ImportJSON(ctx, []byte(`{"v":1,"exportedAt":0,"items":[]}`)))

		count, _ := s.Count(ctx)
		AssertEqual(count, int64(0))
		AssertEqual(pings, 1)
	})
}

func TestExportImportFiles(t *testing.T) {
	Environment(func(newStore func() *Store[testRecord], hub *broadcast.Hub) {
		ctx := context.Background()
		s := newStore()
		seed(s)

		path := filepath.Join(t.TempDir(), "export.json")
		AssertNil(s.ExportToFile(ctx, path))

		AssertNil(s.Clear(ctx))
		AssertNil(s.ImportFromFile(ctx, path))

		items, _ := s.ListAll(ctx, nil)
		AssertEqual(ids(items), []string{"1", "2"})
	})
}
