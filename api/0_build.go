package api

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
	"github.com/fulldump/box/boxopenapi"

	"github.com/fulldump/snipdb/api/apisnippetv1"
	"github.com/fulldump/snipdb/service"
	"github.com/fulldump/snipdb/statics"
)

func Build(s service.Servicer, staticsDir, version string) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1")
	v1.WithInterceptors(
		injectServicer(s),
	)
	apisnippetv1.BuildV1Snippets(v1)

	b.Resource("/version").
		WithActions(
			box.Get(func() interface{} {
				return map[string]interface{}{
					"version": version,
				}
			}).WithName("version"),
		)

	spec := boxopenapi.Spec(b)
	spec.Info.Title = "SnipDB"
	spec.Info.Description = "A tiny snippet store with search, tags and live change notifications."
	spec.Info.Version = version
	b.Handle("GET", "/openapi.json", func(r *http.Request) any {

		spec.Servers = []boxopenapi.Server{
			{
				Url: "http://" + r.Host,
			},
		}

		return spec
	})

	// Mount statics
	b.Resource("/*").
		WithActions(
			box.Get(statics.ServeStatics(staticsDir)).WithName("serveStatics"),
		)

	return b
}

func injectServicer(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(apisnippetv1.SetServicer(ctx, s))
		}
	}
}
