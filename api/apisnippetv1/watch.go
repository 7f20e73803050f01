package apisnippetv1

import (
	"context"
	"net/http"

	"github.com/fulldump/snipdb/broadcast"
)

// watch streams one JSON line per change until the client goes away.
// Bursts of writes may collapse into a single line, the payload carries
// no detail on purpose, clients are expected to reload what they need.
func watch(ctx context.Context, w http.ResponseWriter) error {

	s := GetServicer(ctx)

	pings := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func() {
		select {
		case pings <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pings:
			if _, err := w.Write(broadcast.Ping); err != nil {
				return nil
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
