package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulldump/snipdb/snippet"
)

var ErrorSnippetNotFound = errors.New("snippet not found")
var ErrorInvalidLanguage = fmt.Errorf("invalid language, expected '%s' or '%s'",
	snippet.LanguageTS, snippet.LanguageTSX)
var ErrorInvalidPatch = errors.New("invalid patch")

type Servicer interface {
	ListSnippets(ctx context.Context, orderBy string, asc bool) ([]snippet.Snippet, error)
	SearchSnippets(ctx context.Context, query string) ([]snippet.Snippet, error)
	FindSnippets(ctx context.Context, filter map[string]any) ([]snippet.Snippet, error)
	GetSnippet(ctx context.Context, id string) (snippet.Snippet, error)
	CreateSnippet(ctx context.Context, item snippet.Snippet) (snippet.Snippet, error)
	UpdateSnippet(ctx context.Context, item snippet.Snippet) (snippet.Snippet, error)
	PatchSnippet(ctx context.Context, id string, fields map[string]any) (snippet.Snippet, error)
	DeleteSnippet(ctx context.Context, id string) error
	ClearSnippets(ctx context.Context) error
	ListByTag(ctx context.Context, tag string) ([]snippet.Snippet, error)
	Tags(ctx context.Context) ([]string, error)
	CountSnippets(ctx context.Context) (int64, error)
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, data []byte) error
	Subscribe(listener func()) (unsubscribe func())
	Ready() bool
}
