package main

import (
	"os"

	"github.com/wonny/signalhub/cmd/signalhub/commands"
)

// main is the entry point for the signalhub CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/signalhub [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
