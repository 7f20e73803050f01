package apisnippetv1

import (
	"context"
)

func count(ctx context.Context) (interface{}, error) {

	s := GetServicer(ctx)

	n, err := s.CountSnippets(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"count": n,
	}, nil
}
