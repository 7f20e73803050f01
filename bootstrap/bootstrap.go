package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fulldump/box"

	"github.com/fulldump/snipdb/api"
	"github.com/fulldump/snipdb/broadcast"
	"github.com/fulldump/snipdb/configuration"
	"github.com/fulldump/snipdb/engine"
	"github.com/fulldump/snipdb/service"
	"github.com/fulldump/snipdb/snippet"
	"github.com/fulldump/snipdb/store"
)

var VERSION = "dev"

// NewEngine picks the storage engine the configuration asks for.
func NewEngine(c configuration.Configuration) (engine.Engine, error) {
	switch c.Engine {
	case "file":
		return engine.NewFileEngine(c.Dir), nil
	case "sqlite":
		return engine.NewSQLiteEngine(c.Dir), nil
	case "memory":
		return engine.NewMemoryEngine(), nil
	}

	return nil, fmt.Errorf("unknown engine '%s', expected file, sqlite or memory", c.Engine)
}

func Bootstrap(c configuration.Configuration) (start, stop func()) {

	e, err := NewEngine(c)
	if err != nil {
		log.Println("ERROR:", err.Error())
		os.Exit(-1)
	}

	registry := engine.NewRegistry(e)
	hub := broadcast.NewHub()
	s := service.NewService(registry, hub)

	b := api.Build(s, c.Statics, VERSION)
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.AccessLog(log.New(os.Stdout, "ACCESS: ", log.Lshortfile)),
		box.RecoverFromPanic,
		api.PrettyErrorInterceptor,
		api.InterceptorUnavailable(s),
	)

	server := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		log.Println("ERROR:", err.Error())
		os.Exit(-1)
	}
	log.Println("listening on", c.HttpAddr)

	stop = func() {
		server.Shutdown(context.Background())
		registry.Close()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for {
			sig := <-signalChan
			fmt.Println("Signal received", sig.String())
			stop()
		}
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Warm(context.Background())
			if err != nil {
				fmt.Println(err.Error())
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := server.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Println(err.Error())
			}
		}()

		wg.Wait()
	}

	return
}

// ExportFile dumps every snippet to filename and returns, without
// starting the HTTP server.
func ExportFile(c configuration.Configuration, filename string) error {

	e, err := NewEngine(c)
	if err != nil {
		return err
	}

	registry := engine.NewRegistry(e)
	defer registry.Close()

	snippets := store.New[snippet.Snippet](snippet.Config(), registry, nil)

	return snippets.ExportToFile(context.Background(), filename)
}

// ImportFile loads an export file (or a bare array of snippets) and
// returns, without starting the HTTP server.
func ImportFile(c configuration.Configuration, filename string) error {

	e, err := NewEngine(c)
	if err != nil {
		return err
	}

	registry := engine.NewRegistry(e)
	defer registry.Close()

	snippets := store.New[snippet.Snippet](snippet.Config(), registry, nil)

	return snippets.ImportFromFile(context.Background(), filename)
}
