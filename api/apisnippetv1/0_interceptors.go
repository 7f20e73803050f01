package apisnippetv1

import (
	"context"

	"github.com/fulldump/snipdb/service"
)

const ContextServicerKey = "0f4e9da8-74f1-42cb-9a63-2954d9f712ba"

func SetServicer(ctx context.Context, s service.Servicer) context.Context {
	return context.WithValue(ctx, ContextServicerKey, s)
}

func GetServicer(ctx context.Context) service.Servicer {
	return ctx.Value(ContextServicerKey).(service.Servicer)
}
