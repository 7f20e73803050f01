package apisnippetv1

import (
	"context"
	"io"
	"net/http"
)

// importSnippets expects an export envelope or a bare array of
// snippets. Existing ids are overwritten, nothing is written if any
// record is invalid.
func importSnippets(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	s := GetServicer(ctx)

	err = s.Import(ctx, body)
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
