package apisnippetv1

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
)

func deleteSnippet(ctx context.Context, w http.ResponseWriter) error {

	s := GetServicer(ctx)

	err := s.DeleteSnippet(ctx, box.GetUrlParameter(ctx, "snippetId"))
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
