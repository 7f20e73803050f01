package statics

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed www
var www embed.FS

// ServeStatics serves the embedded UI. Setting staticsDir overrides it
// with a directory on disk, which is handy during development.
func ServeStatics(staticsDir string) http.HandlerFunc {
	if staticsDir != "" {
		return http.FileServer(http.Dir(staticsDir)).ServeHTTP
	}

	sub, err := fs.Sub(www, "www")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub)).ServeHTTP
}
