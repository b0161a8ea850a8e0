package main

import (
	"os"

	"github.com/zslzxy/toolmesh/cmd/toolmesh/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
