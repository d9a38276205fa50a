package main

import (
	"os"

	"github.com/wonny/camon/backend/cmd/camon/commands"
)

// main is the entry point for the camon CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/camon [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
