// Package config provides configuration management for broforce-map-downloader.
//
// This package handles:
//   - Loading settings from a YAML file (creating a commented default first)
//   - Validating ranges before any network activity
//   - Environment overrides, optionally from a .env file
//   - Conversion to the HTTP client configuration
//
// # Loading
//
//	settings, err := config.Load("config.yaml")
//	if err != nil {
//	    // err lists every invalid key
//	}
//
// # Filters
//
// Gameplay types and difficulty levels are sets. Each can be written as a
// digit string, a number or a list:
//
//	gameplay_types: "135"
//	gameplay_types: [standard, story, challenge]
//	difficulty_levels: 13
//
// # Environment
//
//	BROFORCE_MAPS_DIR, BROFORCE_PAGES, BROFORCE_LOG_LEVEL, BROFORCE_CATALOG
package config
