package main

import (
	"os"

	"github.com/alex-user-go/hutavail/cmd/availctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
