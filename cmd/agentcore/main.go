package main

import (
	"os"

	"github.com/localfirst/agentcore/cmd/agentcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
