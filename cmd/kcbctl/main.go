package main

import (
	"os"

	"kcb-payments-workbench/internal/commands"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
