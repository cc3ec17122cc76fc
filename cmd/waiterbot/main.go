// Command waiterbot is the entry point for the restaurant waiter chatbot.
// It provides a CLI (via Cobra) for ingesting menus, asking one-off
// questions, exporting embeddings, and serving the document event endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/54b3r/waiterbot-go/cmd/waiterbot/commands"
)

func main() {
	// A missing .env is normal in deployed environments.
	_ = godotenv.Load()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
