package main

import (
	"fmt"
	"os"

	"github.com/AsafBen179/WhatsAppWebAPI/cmd/wawebapi/commands"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := commands.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
