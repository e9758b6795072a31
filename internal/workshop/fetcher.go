package workshop

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/handiism/broforce-map-downloader/internal/config"
	"github.com/handiism/broforce-map-downloader/internal/model"
)

// AppID is Broforce's Steam app id.
const AppID = 274190

// PageGetter fetches a page body. *http.Client satisfies it; its
// FetchString already applies the retry policy.
type PageGetter interface {
	FetchString(ctx context.Context, url string) (string, error)
}

// Page is one fetched and parsed browse page.
type Page struct {
	GameplayType model.GameplayType
	Difficulty   model.Difficulty
	Number       int
	URL          string

	// Listings passed parsing and the category filter.
	Listings []*model.MapListing

	// Skipped are entries that could not be parsed.
	Skipped []error

	// Filtered counts listings dropped for falling outside the filters.
	Filtered int
}

// Empty reports whether the page had no entries at all.
func (p *Page) Empty() bool {
	return len(p.Listings) == 0 && len(p.Skipped) == 0 && p.Filtered == 0
}

// PageError is a page that could not be fetched after all retries.
type PageError struct {
	GameplayType model.GameplayType
	Difficulty   model.Difficulty
	Number       int
	URL          string
	Err          error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("failed to fetch %s - %s page %d: %v", e.GameplayType, e.Difficulty, e.Number, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Fetcher walks the workshop browse pages selected by the settings.
//
// For every gameplay type and difficulty in the settings it requests pages
// 1..NumberOfPages, filtered by both as required tags. The browse page does
// not print the category of an item, so every listing is tagged with the
// pair its page was requested for.
type Fetcher struct {
	client   PageGetter
	settings *config.Settings
	log      logrus.FieldLogger
}

// NewFetcher creates a Fetcher.
func NewFetcher(client PageGetter, settings *config.Settings, log logrus.FieldLogger) *Fetcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Fetcher{client: client, settings: settings, log: log}
}

// BrowseURL builds the browse URL for one filter pair and page.
func (f *Fetcher) BrowseURL(g model.GameplayType, d model.Difficulty, page int) string {
	q := url.Values{}
	q.Set("appid", strconv.Itoa(AppID))
	q.Set("browsesort", "trend")
	q.Set("section", "readytouseitems")
	q.Set("actualsort", "trend")
	q.Set("p", strconv.Itoa(page))
	q.Set("days", strconv.Itoa(int(f.settings.TimePeriod)))
	q.Set("numperpage", strconv.Itoa(f.settings.MapsPerPage))
	q.Add("requiredtags[]", d.String())
	q.Add("requiredtags[]", g.String())

	base := f.settings.BrowseURL
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// Pages lazily fetches browse pages, one request per iteration step.
//
// A page that fails after all retries yields a *PageError and the walk moves
// on to the next page. A page without entries ends the pagination for its
// filter pair. Cancelling ctx ends the sequence after yielding ctx.Err().
func (f *Fetcher) Pages(ctx context.Context) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		for _, g := range f.settings.GameplayTypes {
			for _, d := range f.settings.DifficultyLevels {
				for n := 1; n <= f.settings.NumberOfPages; n++ {
					if err := ctx.Err(); err != nil {
						yield(nil, err)
						return
					}

					page, err := f.FetchPage(ctx, g, d, n)
					if err != nil {
						if errors.Is(err, context.Canceled) {
							yield(nil, err)
							return
						}
						if !yield(nil, err) {
							return
						}
						continue
					}

					if !yield(page, nil) {
						return
					}
					if page.Empty() {
						f.log.WithFields(logrus.Fields{
							"gameplay":   g,
							"difficulty": d,
							"page":       n,
						}).Debug("empty page, skipping remaining pages")
						break
					}
				}
			}
		}
	}
}

// FetchPage fetches and parses a single browse page.
func (f *Fetcher) FetchPage(ctx context.Context, g model.GameplayType, d model.Difficulty, n int) (*Page, error) {
	pageURL := f.BrowseURL(g, d, n)

	body, err := f.client.FetchString(ctx, pageURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &PageError{GameplayType: g, Difficulty: d, Number: n, URL: pageURL, Err: err}
	}

	parsed, err := ParseBrowsePage(strings.NewReader(body))
	if err != nil {
		return nil, &PageError{GameplayType: g, Difficulty: d, Number: n, URL: pageURL, Err: err}
	}

	page := &Page{
		GameplayType: g,
		Difficulty:   d,
		Number:       n,
		URL:          pageURL,
		Skipped:      parsed.Skipped,
	}
	for _, skipped := range parsed.Skipped {
		f.log.WithField("url", pageURL).WithError(skipped).Warn("skipping unparseable entry")
	}

	for _, l := range parsed.Listings {
		l.GameplayType = g
		l.Difficulty = d
		if !f.Accepts(l) {
			page.Filtered++
			continue
		}
		page.Listings = append(page.Listings, l)
	}

	return page, nil
}

// Accepts reports whether the listing's category is inside the configured filters.
func (f *Fetcher) Accepts(l *model.MapListing) bool {
	return f.settings.GameplayTypes.Contains(l.GameplayType) &&
		f.settings.DifficultyLevels.Contains(l.Difficulty)
}
