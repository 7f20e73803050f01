package apisnippetv1

import (
	"context"
)

func listTags(ctx context.Context) ([]string, error) {

	s := GetServicer(ctx)

	return s.Tags(ctx)
}
