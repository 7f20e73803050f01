package apisnippetv1

import (
	"context"
	"net/http"
)

func export(ctx context.Context, w http.ResponseWriter) error {

	s := GetServicer(ctx)

	data, err := s.Export(ctx)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="snippets.json"`)
	_, err = w.Write(data)
	return err
}
