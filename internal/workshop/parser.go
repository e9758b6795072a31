package workshop

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/handiism/broforce-map-downloader/internal/model"
)

var (
	// ErrNoExtension is returned when the mirror page names no usable file.
	ErrNoExtension = errors.New("filename with extension not found")

	// ErrNoDownloadLink is returned when the mirror page has no download anchor.
	ErrNoDownloadLink = errors.New("download link not found on the page")
)

var (
	starRatingRe = regexp.MustCompile(`(\d+)-star\.png`)
	extensionRe  = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// BrowsePage is the parsed content of one workshop browse page.
type BrowsePage struct {
	// Listings have WorkshopID, Title, StarRating and PreviewURL set.
	// The category fields are left for the caller.
	Listings []*model.MapListing

	// Entries counts every workshopItem block, parsed or not.
	Entries int

	// Skipped holds one error per entry that could not be parsed.
	Skipped []error
}

// ParseBrowsePage extracts the map entries of a workshop browse page.
//
// Each div.workshopItem is expected to carry:
//   - a link whose query has the workshop id (…/filedetails/?id=123&searchtext=)
//   - a .workshopItemTitle element
//   - an img.fileRating whose src ends in "<n>-star.png"
//
// Entries that miss any of these are reported in Skipped and left out.
func ParseBrowsePage(r io.Reader) (*BrowsePage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse browse page: %w", err)
	}

	page := &BrowsePage{}
	doc.Find("div.workshopItem").Each(func(i int, item *goquery.Selection) {
		page.Entries++
		listing, err := parseItem(item)
		if err != nil {
			page.Skipped = append(page.Skipped, fmt.Errorf("entry %d: %w", i+1, err))
			return
		}
		page.Listings = append(page.Listings, listing)
	})

	return page, nil
}

func parseItem(item *goquery.Selection) (*model.MapListing, error) {
	var id string
	item.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		id = workshopIDFromHref(href)
		return id == ""
	})
	if id == "" {
		return nil, errors.New("no workshop id link")
	}

	titleSel := item.Find(".workshopItemTitle").First()
	if titleSel.Length() == 0 {
		return nil, fmt.Errorf("map %s: no title", id)
	}
	title := strings.TrimSpace(titleSel.Text())

	ratingSrc, ok := item.Find("img.fileRating").First().Attr("src")
	if !ok {
		return nil, fmt.Errorf("map %s: no rating image", id)
	}

	listing := &model.MapListing{
		WorkshopID: id,
		Title:      title,
		StarRating: extractStarRating(ratingSrc),
	}
	if src, ok := item.Find("img.workshopItemPreviewImage").First().Attr("src"); ok {
		listing.PreviewURL = src
	}
	return listing, nil
}

// workshopIDFromHref returns the numeric id= parameter of href, or "".
func workshopIDFromHref(href string) string {
	var id string
	if u, err := url.Parse(href); err == nil {
		id = u.Query().Get("id")
	}
	if id == "" {
		if _, after, ok := strings.Cut(href, "id="); ok {
			id, _, _ = strings.Cut(after, "&")
		}
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return ""
	}
	return id
}

// extractStarRating reads the rating from a rating image URL such as
// ".../4-star.png?v=2". Anything unrecognised is 0 ("not enough ratings").
func extractStarRating(src string) int {
	m := starRatingRe.FindStringSubmatch(src)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 || n > model.MaxStarRating {
		return 0
	}
	return n
}

// MirrorFile is what a mirror view page tells about a workshop item.
type MirrorFile struct {
	DownloadURL string
	Extension   string
}

// ParseMirrorPage reads the file extension and the payload link from a
// mirror view page. pageURL resolves relative links.
//
// The extension comes from the first "Filename: name.ext" text whose
// extension is alphanumeric. The link is the anchor whose text starts
// with "Download:".
func ParseMirrorPage(r io.Reader, pageURL string) (*MirrorFile, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse mirror page: %w", err)
	}

	ext := ""
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		s.Contents().EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if goquery.NodeName(c) != "#text" {
				return true
			}
			ext = extensionFromText(c.Text())
			return ext == ""
		})
		return ext == ""
	})
	if ext == "" {
		return nil, ErrNoExtension
	}

	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.HasPrefix(strings.TrimSpace(a.Text()), "Download:") {
			href, _ = a.Attr("href")
			return false
		}
		return true
	})
	if href == "" {
		return nil, ErrNoDownloadLink
	}

	link, err := resolveURL(pageURL, href)
	if err != nil {
		return nil, err
	}
	return &MirrorFile{DownloadURL: link, Extension: strings.ToLower(ext)}, nil
}

func extensionFromText(text string) string {
	if !strings.Contains(text, "Filename:") {
		return ""
	}
	i := strings.LastIndex(text, ".")
	if i < 0 {
		return ""
	}
	ext := strings.TrimSpace(text[i+1:])
	if !extensionRe.MatchString(ext) {
		return ""
	}
	return ext
}

func resolveURL(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("bad download link %q: %w", ref, err)
	}
	if base == "" || r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("bad page url %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}
