// Package library manages the local maps directory.
//
// The layout is one folder per star rating:
//
//	maps/
//	  0/ 1/ 2/ 3/ 4/ 5/      organized maps, <type><difficulty><rating>-<id>-<title>.<ext>
//	  non-bfg/                payloads the mirror names with another extension
//	  duplicates/             re-uploads of maps that already exist
//	  .staging/               payloads that have not been organized yet
//
// ScanIDs builds the set of workshop ids already present, Organizer moves
// staged payloads into place and FindDuplicates/ProcessDuplicates deal with
// the same map uploaded under several workshop ids.
package library
