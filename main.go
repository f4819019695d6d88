package main

import (
	"fmt"
	"os"

	"github.com/medigenius/medigenius/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
