package main

import (
	"context"
	"fmt"
	"os"

	"carecart/pkg/app"
)

// main lets operators start the service with `go run carecart.go`.
func main() {
	if err := app.Run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "carecart: %v\n", err)
		os.Exit(1)
	}
}
