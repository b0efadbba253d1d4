package main

import (
	"fmt"
	"os"

	"secondbrain/internal/cli"
	"secondbrain/internal/config"
)

func main() {
	// Set the GetEnv function for config
	config.GetEnv = os.Getenv

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
