package main

import (
	"fmt"
	"os"

	"riskradar/cmd/handlers"
)

func main() {
	if err := handlers.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
