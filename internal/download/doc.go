// Package download runs a download pass over the Broforce workshop.
//
// # Manager
//
// The Manager coordinates the entire process:
//
//  1. Scan the maps directory for workshop ids already present
//  2. Walk the browse pages for every configured gameplay type and difficulty
//  3. Resolve each new map on the mirror and download it into the staging folder
//  4. Organize staged maps into star-rating folders
//  5. Save preview images and move duplicate uploads aside (optional)
//
// # Basic Usage
//
//	manager := download.NewManager(settings, download.Options{}, func(event download.ProgressEvent) {
//	    fmt.Println(event.Message)
//	})
//
//	if err := manager.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := manager.StartDownloads(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	summary := manager.Summary()
//
// # Failures
//
// A map that cannot be resolved, downloaded or organized is listed in
// Summary.Failed and the run continues with the next one. Pages that fail
// after all retries are listed in Summary.PageErrors.
//
// # Concurrency
//
// Downloads run sequentially unless settings.MaxConcurrentDownloads is
// raised. Organizing always happens afterwards in listing order, so the
// result does not depend on which download finished first.
package download
