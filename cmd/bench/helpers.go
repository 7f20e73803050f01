package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fulldump/snipdb/bootstrap"
	"github.com/fulldump/snipdb/configuration"
)

type JSON = map[string]any

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "snipdb_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func CreateServer(c *Config) (start, stop func()) {
	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	conf := configuration.Default()
	conf.Dir = dir
	conf.ShowBanner = false
	c.Base = "http://localhost" + conf.HttpAddr

	return bootstrap.Bootstrap(conf)
}

func WaitReady(base string) {
	for i := 0; i < 100; i++ {
		resp, err := http.Get(base + "/version")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	panic("server is not ready")
}

func newClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     1024,
			MaxIdleConnsPerHost: 1024,
			MaxIdleConns:        1024,
		},
	}
}

func newSnippet(n int64) JSON {
	return JSON{
		"id":    strconv.FormatInt(n, 10),
		"title": fmt.Sprintf("snippet %d", n),
		"code":  "export const n = " + strconv.FormatInt(n, 10),
		"tags":  []string{"bench"},
	}
}

// seed loads n snippets in one import request.
func seed(base string, n int64) {

	items := make([]JSON, 0, n)
	for i := int64(0); i < n; i++ {
		items = append(items, newSnippet(i))
	}
	payload, _ := json.Marshal(JSON{
		"v":          1,
		"exportedAt": time.Now().UnixMilli(),
		"items":      items,
	})

	resp, err := http.Post(base+"/v1/snippets:import", "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Println("ERROR: seed:", err.Error())
		os.Exit(2)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		fmt.Println("ERROR: seed: unexpected status", resp.Status)
		os.Exit(2)
	}
}
