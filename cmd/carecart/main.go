package main

import (
	"context"
	"fmt"
	"os"

	"carecart/pkg/app"
)

// main is the entry point process managers run.
func main() {
	if err := app.Run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "carecart: %v\n", err)
		os.Exit(1)
	}
}
