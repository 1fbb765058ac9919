package main

import (
	"os"

	"healthvault/cmd/healthctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
