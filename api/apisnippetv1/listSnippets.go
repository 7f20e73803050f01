package apisnippetv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/snippet"
)

func listSnippets(ctx context.Context) ([]snippet.Snippet, error) {

	s := GetServicer(ctx)

	query := box.GetRequest(ctx).URL.Query()

	// Descending is the default, pass dir=asc to flip it
	return s.ListSnippets(ctx, query.Get("orderBy"), query.Get("dir") == "asc")
}
