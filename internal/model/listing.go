package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// MaxStarRating is the highest rating the workshop shows. A rating of 0
// means the map does not have enough votes yet.
const MaxStarRating = 5

// MapListing represents one map entry scraped from a workshop browse page.
//
// GameplayType and Difficulty are not printed on the browse page; they are
// the filter pair the page was requested with.
type MapListing struct {
	// WorkshopID is the numeric workshop item ID. It is the uniqueness key.
	WorkshopID string

	// Title is the display title as shown on the workshop.
	Title string

	GameplayType GameplayType
	Difficulty   Difficulty

	// StarRating is 0-5, where 0 means "not enough ratings".
	StarRating int

	// PreviewURL is the thumbnail shown on the browse page, if any.
	PreviewURL string
}

// Prefix returns the three-digit category code, e.g. "134" for a
// Standard/Brotal map rated four stars.
func (l *MapListing) Prefix() string {
	return fmt.Sprintf("%d%d%d", int(l.GameplayType), int(l.Difficulty), l.StarRating)
}

// FileName returns the canonical file name for the map:
//
//	<type><difficulty><rating>-<workshopID>-<title>.<ext>
//
// The title is passed through SanitizeTitle.
func (l *MapListing) FileName(ext string) string {
	name := l.Prefix() + "-" + l.WorkshopID + "-" + SanitizeTitle(l.Title)
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	return name
}

// RatingDir returns the folder name for the listing's star rating.
func (l *MapListing) RatingDir() string {
	return strconv.Itoa(l.StarRating)
}

// OrganizedPath returns where the map ends up below mapsDir.
func (l *MapListing) OrganizedPath(mapsDir, ext string) string {
	return filepath.Join(mapsDir, l.RatingDir(), l.FileName(ext))
}

// DownloadTask pairs a listing with everything needed to fetch its payload.
type DownloadTask struct {
	Listing *MapListing

	// MirrorURL is the mirror page that names the file and links the payload.
	MirrorURL string

	// DownloadURL and Extension are resolved from the mirror page.
	DownloadURL string
	Extension   string

	// StagingPath is where the payload is written before organizing.
	StagingPath string
}

// NewDownloadTask creates a task for listing with its staging path inside stagingDir.
func NewDownloadTask(listing *MapListing, mirrorURL, stagingDir string) *DownloadTask {
	return &DownloadTask{
		Listing:     listing,
		MirrorURL:   mirrorURL,
		StagingPath: filepath.Join(stagingDir, listing.WorkshopID+".part"),
	}
}

// OrganizedFile is a map placed at its final location.
type OrganizedFile struct {
	Listing *MapListing
	Path    string
	Size    int64
}

var (
	whitespaceRun    = regexp.MustCompile(`\s+`)
	illegalNameChars = regexp.MustCompile(`["\\/*?<>|\x00-\x1f]`)
	trailingDots     = regexp.MustCompile(`[. ]+$`)
)

// SanitizeTitle turns a workshop title into something every filesystem accepts.
//
//   - runs of whitespace collapse to a single space
//   - ":" becomes " -"
//   - " \ / * ? < > | and control characters are removed
//   - trailing dots and spaces are trimmed (Windows)
//
// An empty result becomes "untitled".
func SanitizeTitle(title string) string {
	title = strings.TrimSpace(whitespaceRun.ReplaceAllString(title, " "))
	title = strings.ReplaceAll(title, ":", " -")
	title = illegalNameChars.ReplaceAllString(title, "")
	title = whitespaceRun.ReplaceAllString(title, " ")
	title = trailingDots.ReplaceAllString(strings.TrimSpace(title), "")
	if title == "" {
		return "untitled"
	}
	return title
}

// FileName is the parsed form of an organized map file name.
type FileName struct {
	Prefix     string
	WorkshopID string
	Title      string
	Ext        string
}

// ParseFileName splits name ("134-123456789-Jungle Run.bfg") into its parts.
// It reports false when the second dash-separated field is not a workshop ID.
func ParseFileName(name string) (FileName, bool) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	parts := strings.SplitN(stem, "-", 3)
	if len(parts) < 2 || !isDigits(parts[1]) {
		return FileName{}, false
	}

	fn := FileName{
		Prefix:     parts[0],
		WorkshopID: parts[1],
		Ext:        strings.TrimPrefix(ext, "."),
	}
	if len(parts) == 3 {
		fn.Title = parts[2]
	}
	return fn, true
}

// StarRating returns the rating encoded as the last prefix digit.
func (f FileName) StarRating() (int, bool) {
	if f.Prefix == "" {
		return 0, false
	}
	r := f.Prefix[len(f.Prefix)-1]
	if r < '0' || r > '0'+MaxStarRating {
		return 0, false
	}
	return int(r - '0'), true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
