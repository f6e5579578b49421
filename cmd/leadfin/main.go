package main

import (
	"os"

	"github.com/teresa-solution/lead-finance-service/cmd/leadfin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
