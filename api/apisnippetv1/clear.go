package apisnippetv1

import (
	"context"
	"net/http"
)

func clear(ctx context.Context, w http.ResponseWriter) error {

	s := GetServicer(ctx)

	if err := s.ClearSnippets(ctx); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
