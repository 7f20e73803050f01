package main

import (
	"fmt"
	"time"
)

// TestImport measures one bulk import, the whole batch is a single
// atomic write server side.
func TestImport(c Config) {

	if c.Base == "" {
		start, stop := CreateServer(&c)
		defer stop()
		go start()
		WaitReady(c.Base)
	}

	t0 := time.Now()
	seed(c.Base, c.N)

	took := time.Since(t0)
	fmt.Println("imported:", c.N)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f snippets/sec\n", float64(c.N)/took.Seconds())
}
