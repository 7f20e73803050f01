package apisnippetv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/snippet"
)

func patchSnippet(ctx context.Context, input *map[string]any) (*snippet.Snippet, error) {

	s := GetServicer(ctx)

	patched, err := s.PatchSnippet(ctx, box.GetUrlParameter(ctx, "snippetId"), *input)
	if err != nil {
		return nil, err
	}

	return &patched, nil
}
