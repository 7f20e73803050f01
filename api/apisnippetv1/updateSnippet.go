package apisnippetv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/snippet"
	"github.com/fulldump/snipdb/utils"
)

type updateSnippetRequest struct {
	Title    string   `json:"title"`
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Tags     []string `json:"tags"`
}

func updateSnippet(ctx context.Context, input *updateSnippetRequest) (*snippet.Snippet, error) {

	s := GetServicer(ctx)

	item := snippet.Snippet{}
	if err := utils.Remarshal(input, &item); err != nil {
		return nil, err
	}
	item.ID = box.GetUrlParameter(ctx, "snippetId")

	updated, err := s.UpdateSnippet(ctx, item)
	if err != nil {
		return nil, err
	}

	return &updated, nil
}
