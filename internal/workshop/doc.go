// Package workshop scrapes the Steam Workshop browse pages for Broforce
// maps and resolves each map to a download link on the mirror site.
//
// # Listing pages
//
// Fetcher walks every (gameplay type, difficulty) pair from the settings and
// yields pages lazily:
//
//	fetcher := workshop.NewFetcher(client, settings, log)
//	for page, err := range fetcher.Pages(ctx) {
//	    if err != nil {
//	        // *PageError: this page failed after all retries
//	        continue
//	    }
//	    for _, listing := range page.Listings {
//	        fmt.Println(listing.WorkshopID, listing.Title)
//	    }
//	}
//
// # Mirror pages
//
// The workshop itself does not serve files to anonymous clients. The mirror
// view page (/download/view/<id>) prints "Filename: name.ext" and a
// "Download: ..." link:
//
//	mirror := workshop.NewMirror(client, "http://steamworkshop.download")
//	task := model.NewDownloadTask(listing, mirror.ViewURL(listing.WorkshopID), stagingDir)
//	err := mirror.Resolve(ctx, task) // sets task.DownloadURL and task.Extension
package workshop
