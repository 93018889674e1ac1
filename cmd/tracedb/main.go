package main

import (
	"flag"
	"fmt"
	"os"

	"tracedb/internal/app"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if envConfigFile := os.Getenv("TRACEDB_CONFIG_FILE"); envConfigFile != "" {
			configFile = envConfigFile
		}
	}

	application, err := app.New(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create tracedb: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tracedb error: %v\n", err)
		os.Exit(1)
	}
}
