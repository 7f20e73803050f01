package apisnippetv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/snippet"
)

func listTagSnippets(ctx context.Context) ([]snippet.Snippet, error) {

	s := GetServicer(ctx)

	return s.ListByTag(ctx, box.GetUrlParameter(ctx, "tagName"))
}
