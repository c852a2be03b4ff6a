package main

import (
	"fmt"
	"os"

	"github.com/HsiangNianian/framelink/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "framelink:", err)
		os.Exit(1)
	}
}
