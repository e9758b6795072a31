// Package model defines the core data structures used throughout
// the broforce-map-downloader application.
//
// # Categories
//
// Workshop maps are tagged with one GameplayType and one Difficulty. Both
// are small enumerations whose numeric values double as the digits used in
// the settings file and in the organized file names:
//
//	GameplayStandard (1) ... GameplayDeathmatch (6)
//	DifficultyNormal (1), DifficultyChallenging (2), DifficultyBrotal (3)
//
// # MapListing
//
// MapListing is one map entry scraped from a workshop browse page:
//
//	listing := &model.MapListing{
//	    WorkshopID:   "123456789",
//	    Title:        "Jungle Run",
//	    GameplayType: model.GameplayStandard,
//	    Difficulty:   model.DifficultyBrotal,
//	    StarRating:   4,
//	}
//	listing.FileName("bfg")              // "134-123456789-Jungle Run.bfg"
//	listing.OrganizedPath("maps", "bfg") // "maps/4/134-123456789-Jungle Run.bfg"
//
// # File names
//
// ParseFileName reverses the naming scheme far enough to recover the
// workshop ID, which is how already downloaded maps are recognised.
package model
