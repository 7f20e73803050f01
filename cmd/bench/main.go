package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/fulldump/goconfig"
)

type Config struct {
	Test    string `usage:"name of the test: INSERT | IMPORT | SEARCH"`
	Base    string `usage:"base URL, empty starts a disposable local server"`
	N       int64  `usage:"number of operations"`
	Workers int    `usage:"number of workers"`
}

var cleanups []func()

func main() {

	defer func() {
		fmt.Println("Cleaning up...")
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	c := Config{
		Test:    "insert",
		Base:    "",
		N:       100_000,
		Workers: 16,
	}
	goconfig.Read(&c)

	switch strings.ToUpper(c.Test) {
	case "INSERT":
		TestInsert(c)
	case "IMPORT":
		TestImport(c)
	case "SEARCH":
		TestSearch(c)
	default:
		log.Fatalf("Unknown test %s", c.Test)
	}
}
