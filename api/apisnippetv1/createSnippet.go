package apisnippetv1

import (
	"context"
	"net/http"

	"github.com/fulldump/snipdb/snippet"
	"github.com/fulldump/snipdb/utils"
)

type createSnippetRequest struct {
	Id       string   `json:"id"`
	Title    string   `json:"title"`
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Tags     []string `json:"tags"`
}

func createSnippet(ctx context.Context, w http.ResponseWriter, input *createSnippetRequest) (*snippet.Snippet, error) {

	s := GetServicer(ctx)

	item := snippet.Snippet{}
	if err := utils.Remarshal(input, &item); err != nil {
		return nil, err
	}

	created, err := s.CreateSnippet(ctx, item)
	if err != nil {
		return nil, err
	}

	w.WriteHeader(http.StatusCreated)
	return &created, nil
}
