package apisnippetv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/snippet"
)

func getSnippet(ctx context.Context) (*snippet.Snippet, error) {

	s := GetServicer(ctx)

	item, err := s.GetSnippet(ctx, box.GetUrlParameter(ctx, "snippetId"))
	if err != nil {
		return nil, err
	}

	return &item, nil
}
