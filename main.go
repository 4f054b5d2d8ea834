package main

import (
	"fmt"
	"os"

	"github.com/sahilchouksey/course-marketplace-api/app"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := app.SetupAndRunServer(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
}
