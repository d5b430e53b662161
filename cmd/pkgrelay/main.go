package main

import (
	"os"

	"github.com/bianoble/pkgrelay/cmd/pkgrelay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
