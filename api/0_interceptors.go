package api

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/service"
)

var ErrorUnavailable = errors.New("temporarily unavailable")

func AccessLog(l *log.Logger) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			r := box.GetRequest(ctx)
			now := time.Now()
			defer func() {
				l.Println(formatRemoteAddr(r), r.Method, r.URL.String(), time.Since(now))
			}()

			next(ctx)
		}
	}
}

func formatRemoteAddr(r *http.Request) string {
	forwarded := strings.TrimSpace(strings.Split(
		r.Header.Get("X-Forwarded-For"), ",")[0])
	if forwarded != "" {
		return forwarded
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// InterceptorUnavailable rejects requests until the service has warmed
// up. List it after PrettyErrorInterceptor so the error gets a body.
func InterceptorUnavailable(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			if !s.Ready() {
				box.SetError(ctx, ErrorUnavailable)
				return
			}
			next(ctx)
		}
	}
}
