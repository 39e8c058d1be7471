package main

import (
	"fmt"
	"os"

	"github.com/loganrooks/storage-hygiene-go/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "storage-hygiene: %v\n", err)
		os.Exit(1)
	}
}
