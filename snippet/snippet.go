// Package snippet defines the snippet record and the layout of the
// snippets store.
package snippet

import (
	"github.com/fulldump/snipdb/engine"
	"github.com/fulldump/snipdb/store"
)

const (
	LanguageTS  = "ts"
	LanguageTSX = "tsx"
)

const (
	IndexByTitle     = "by_title"
	IndexByUpdatedAt = "by_updatedAt"
	IndexByTags      = "by_tags"
)

type Snippet struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Code      string   `json:"code"`
	Language  string   `json:"language"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}

func IsValidLanguage(language string) bool {
	return language == LanguageTS || language == LanguageTSX
}

// Config returns the store layout for snippets: records keyed by id,
// indexed by title, updatedAt and tags, searchable by title, code and
// tags.
func Config() store.Config {
	return store.Config{
		Database: "snipdb",
		Version:  1,
		Name:     "snippets",
		KeyField: "id",
		Indexes: []engine.IndexSchema{
			{Name: IndexByTitle, Field: "title"},
			{Name: IndexByUpdatedAt, Field: "updatedAt"},
			{Name: IndexByTags, Field: "tags", MultiEntry: true},
		},
		SearchFields: []string{"title", "code", "tags"},
	}
}
