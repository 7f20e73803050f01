package api

import (
	"compress/gzip"
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fulldump/box"
)

// Compression gzips responses when the client accepts it. Images are
// served as is, they are already compressed.
func Compression(next box.H) box.H {
	return func(ctx context.Context) {
		r := box.GetRequest(ctx)
		w := box.GetResponse(ctx)

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next(ctx)
			return
		}
		mimeType := mime.TypeByExtension(filepath.Ext(r.URL.Path))
		if strings.HasPrefix(mimeType, "image/") {
			next(ctx)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		box.GetBoxContext(ctx).Response = &gzipResponseWriter{gz: gz, ResponseWriter: w}
		next(ctx)
	}
}

type gzipResponseWriter struct {
	gz *gzip.Writer
	http.ResponseWriter
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.gz.Write(b)
}

// Flush keeps streaming endpoints usable under compression.
func (w *gzipResponseWriter) Flush() {
	w.gz.Flush()
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
