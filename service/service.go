package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fulldump/snipdb/broadcast"
	"github.com/fulldump/snipdb/engine"
	"github.com/fulldump/snipdb/snippet"
	"github.com/fulldump/snipdb/store"
	"github.com/fulldump/snipdb/utils"
)

type Service struct {
	snippets *store.Store[snippet.Snippet]
	hub      *broadcast.Hub
	ready    atomic.Bool

	now   func() time.Time
	newID func() string
}

func NewService(registry *engine.Registry, hub *broadcast.Hub) *Service {
	return &Service{
		snippets: store.New[snippet.Snippet](snippet.Config(), registry, hub),
		hub:      hub,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Warm opens the snippets store, running any pending schema upgrade,
// and marks the service ready.
func (s *Service) Warm(ctx context.Context) error {
	if _, err := s.snippets.Count(ctx); err != nil {
		return fmt.Errorf("warm snippets: %w", err)
	}
	s.ready.Store(true)
	return nil
}

func (s *Service) Ready() bool {
	return s.ready.Load()
}

func (s *Service) ListSnippets(ctx context.Context, orderBy string, asc bool) ([]snippet.Snippet, error) {
	if orderBy == "" {
		orderBy = "updatedAt" // newest first by default
	}
	return s.snippets.ListAll(ctx, &store.ListOptions{OrderBy: orderBy, Asc: asc})
}

func (s *Service) SearchSnippets(ctx context.Context, query string) ([]snippet.Snippet, error) {
	return s.snippets.Search(ctx, query)
}

func (s *Service) FindSnippets(ctx context.Context, filter map[string]any) ([]snippet.Snippet, error) {
	return s.snippets.Find(ctx, filter)
}

func (s *Service) GetSnippet(ctx context.Context, id string) (snippet.Snippet, error) {
	item, found, err := s.snippets.Get(ctx, id)
	if err != nil {
		return item, err
	}
	if !found {
		return item, fmt.Errorf("snippet '%s': %w", id, ErrorSnippetNotFound)
	}
	return item, nil
}

func (s *Service) CreateSnippet(ctx context.Context, item snippet.Snippet) (snippet.Snippet, error) {
	if item.Language == "" {
		item.Language = snippet.LanguageTS
	}
	if !snippet.IsValidLanguage(item.Language) {
		return item, ErrorInvalidLanguage
	}
	if item.ID == "" {
		item.ID = s.newID()
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}

	now := s.now().UnixMilli()
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := s.snippets.Put(ctx, item); err != nil {
		return item, err
	}
	return item, nil
}

func (s *Service) UpdateSnippet(ctx context.Context, item snippet.Snippet) (snippet.Snippet, error) {
	if item.Language == "" {
		item.Language = snippet.LanguageTS
	}
	if !snippet.IsValidLanguage(item.Language) {
		return item, ErrorInvalidLanguage
	}

	current, err := s.GetSnippet(ctx, item.ID)
	if err != nil {
		return item, err
	}

	if item.Tags == nil {
		item.Tags = []string{}
	}
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = s.now().UnixMilli()

	if err := s.snippets.Put(ctx, item); err != nil {
		return item, err
	}
	return item, nil
}

func (s *Service) PatchSnippet(ctx context.Context, id string, fields map[string]any) (snippet.Snippet, error) {
	var item snippet.Snippet

	for _, field := range []string{"id", "createdAt", "updatedAt"} {
		if _, present := fields[field]; present {
			return item, fmt.Errorf("%w: field '%s' cannot be patched", ErrorInvalidPatch, field)
		}
	}
	if language, present := fields["language"]; present {
		name, _ := language.(string)
		if !snippet.IsValidLanguage(name) {
			return item, ErrorInvalidLanguage
		}
	}

	patch := make(map[string]any, len(fields)+1)
	for field, value := range fields {
		patch[field] = value
	}
	patch["updatedAt"] = s.now().UnixMilli()

	item, err := s.snippets.Patch(ctx, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrorNotFound) {
			return item, fmt.Errorf("snippet '%s': %w", id, ErrorSnippetNotFound)
		}
		return item, err
	}
	return item, nil
}

func (s *Service) DeleteSnippet(ctx context.Context, id string) error {
	return s.snippets.Delete(ctx, id)
}

func (s *Service) ClearSnippets(ctx context.Context) error {
	return s.snippets.Clear(ctx)
}

func (s *Service) ListByTag(ctx context.Context, tag string) ([]snippet.Snippet, error) {
	return s.snippets.ListByIndex(ctx, snippet.IndexByTags, &engine.IndexQuery{Value: tag})
}

// Tags returns every tag in use, sorted alphabetically.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	items, err := s.snippets.ListAll(ctx, nil)
	if err != nil {
		return nil, err
	}

	set := map[string]bool{}
	for _, item := range items {
		for _, tag := range item.Tags {
			set[tag] = true
		}
	}
	return utils.GetKeys(set), nil
}

func (s *Service) CountSnippets(ctx context.Context) (int64, error) {
	return s.snippets.Count(ctx)
}

func (s *Service) Export(ctx context.Context) ([]byte, error) {
	return s.snippets.ExportJSON(ctx)
}

func (s *Service) Import(ctx context.Context, data []byte) error {
	return s.snippets.ImportJSON(ctx, data)
}

// Subscribe opens a fresh channel on the snippets change feed, so the
// listener hears every write, including the ones made through this
// service. The returned function unsubscribes and closes the channel.
func (s *Service) Subscribe(listener func()) (unsubscribe func()) {
	if s.hub == nil {
		return func() {}
	}

	channel := s.hub.Channel(s.snippets.ChannelName())
	channel.Listen(func(message []byte) {
		listener()
	})
	return channel.Close
}
