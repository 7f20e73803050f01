package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

const searchCorpus = 10_000

func TestSearch(c Config) {

	if c.Base == "" {
		start, stop := CreateServer(&c)
		defer stop()
		go start()
		WaitReady(c.Base)
	}

	seed(c.Base, searchCorpus)

	client := newClient()

	var remaining = c.N

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&remaining, -1)
			if n < 0 {
				break
			}

			q := url.Values{}
			q.Set("q", "snippet "+strconv.FormatInt(n%searchCorpus, 10))
			resp, err := client.Get(c.Base + "/v1/snippets:search?" + q.Encode())
			if err != nil {
				fmt.Println("ERROR: do request:", err.Error())
				os.Exit(4)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	})

	took := time.Since(t0)
	fmt.Println("searches:", c.N)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f searches/sec\n", float64(c.N)/took.Seconds())
}
