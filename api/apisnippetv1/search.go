package apisnippetv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/snippet"
)

// search does a case insensitive substring match over title, code and
// tags. A blank query returns everything.
func search(ctx context.Context) ([]snippet.Snippet, error) {

	s := GetServicer(ctx)

	q := box.GetRequest(ctx).URL.Query().Get("q")

	return s.SearchSnippets(ctx, q)
}
