package main

import (
	"os"

	"github.com/solatis/scorekeeper/cmd/scorekeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
