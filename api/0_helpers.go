package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/engine"
	"github.com/fulldump/snipdb/service"
	"github.com/fulldump/snipdb/store"
)

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

// PrettyErrorInterceptor turns errors into a JSON body with a proper
// status code. It must wrap any interceptor that can set an error.
func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		pretty := func(status int, description string) {
			w.WriteHeader(status)
			PrettyError{
				Message:     err.Error(),
				Description: description,
			}.MarshalTo(w)
		}

		switch {
		case errors.Is(err, ErrorUnavailable):
			pretty(http.StatusServiceUnavailable, "the store is warming up, retry in a moment")

		case errors.Is(err, service.ErrorSnippetNotFound):
			pretty(http.StatusNotFound, "the snippet does not exist")

		case errors.Is(err, service.ErrorInvalidLanguage):
			pretty(http.StatusBadRequest, "supported languages are 'ts' and 'tsx'")

		case errors.Is(err, service.ErrorInvalidPatch):
			pretty(http.StatusBadRequest, "'id', 'createdAt' and 'updatedAt' cannot be patched")

		case errors.Is(err, store.ErrorImport):
			pretty(http.StatusBadRequest, "the body must be an export envelope or an array of snippets")

		case errors.Is(err, engine.ErrorMissingKey):
			pretty(http.StatusBadRequest, "every snippet needs a non empty 'id'")

		case errors.Is(err, engine.ErrorUniqueConflict):
			pretty(http.StatusConflict, "a unique index rejected the write")

		case errors.Is(err, box.ErrResourceNotFound):
			pretty(http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String()))

		case errors.Is(err, box.ErrMethodNotAllowed):
			pretty(http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method))

		case errors.Is(err, io.EOF):
			pretty(http.StatusBadRequest, "a JSON body is expected")

		default:
			var syntaxError *json.SyntaxError
			if errors.As(err, &syntaxError) {
				pretty(http.StatusBadRequest, "malformed JSON")
				return
			}
			pretty(http.StatusInternalServerError, "unexpected error")
		}
	}
}
