package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/kestrelworks/roost/internal/cli"
)

func main() {
	// A missing .env is fine; deployments set real environment variables.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
