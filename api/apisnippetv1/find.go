package apisnippetv1

import (
	"context"

	"github.com/fulldump/snipdb/snippet"
)

// find filters snippets with a document filter, see the connor
// operators for the supported syntax.
func find(ctx context.Context, input *map[string]any) ([]snippet.Snippet, error) {

	s := GetServicer(ctx)

	return s.FindSnippets(ctx, *input)
}
