package main

import (
	"os"

	"github.com/kyleking/qik-trak/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
