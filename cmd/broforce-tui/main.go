package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/handiism/broforce-map-downloader/internal/catalog"
	"github.com/handiism/broforce-map-downloader/internal/config"
	"github.com/handiism/broforce-map-downloader/internal/download"
	"github.com/handiism/broforce-map-downloader/internal/tui"
)

func main() {
	configFlag := flag.String("config", config.DefaultPath, "Path to config file (created if missing)")
	flag.Parse()

	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	settings, err := config.Load(*configFlag)
	if err == nil {
		err = settings.ApplyEnv(os.LookupEnv)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// The alternate screen owns the terminal; diagnostics go to the log file only.
	log, closeLog, err := settings.NewLogger(io.Discard)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	opts := download.Options{Logger: log}
	if settings.CatalogPath != "" {
		cat, err := catalog.Open(settings.CatalogPath, log)
		if err != nil {
			log.WithError(err).Warn("catalog unavailable")
		} else {
			defer cat.Close()
			opts.Recorder = cat
		}
	}

	if err := tui.Run(settings, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
