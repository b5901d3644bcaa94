package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aussiebroadwan/invoicer/internal/console/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "invoicer: %v\n", err)
		os.Exit(1)
	}
}
