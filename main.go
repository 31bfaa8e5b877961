package main

import (
	"os"

	"github.com/leftmike/rowdis/cmd"
)

func main() {
	if cmd.Execute() != nil {
		os.Exit(1)
	}
}
