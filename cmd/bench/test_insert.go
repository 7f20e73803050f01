package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

func TestInsert(c Config) {

	if c.Base == "" {
		start, stop := CreateServer(&c)
		defer stop()
		go start()
		WaitReady(c.Base)
	}

	client := newClient()

	var remaining = c.N
	var sent int64

	go func() {
		for {
			fmt.Println("sent:", atomic.LoadInt64(&sent))
			time.Sleep(1 * time.Second)
		}
	}()

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&remaining, -1)
			if n < 0 {
				break
			}

			payload, _ := json.Marshal(newSnippet(n))
			resp, err := client.Post(c.Base+"/v1/snippets", "application/json", bytes.NewReader(payload))
			if err != nil {
				fmt.Println("ERROR: do request:", err.Error())
				os.Exit(4)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			atomic.AddInt64(&sent, 1)
		}
	})

	took := time.Since(t0)
	fmt.Println("sent:", c.N)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f snippets/sec\n", float64(c.N)/took.Seconds())
}
