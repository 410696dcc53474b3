package main

import (
	"os"

	"github.com/nowdev/devserver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
