package download

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/broforce-map-downloader/internal/catalog"
	"github.com/handiism/broforce-map-downloader/internal/config"
	httpc "github.com/handiism/broforce-map-downloader/internal/http"
	"github.com/handiism/broforce-map-downloader/internal/library"
	"github.com/handiism/broforce-map-downloader/internal/model"
	"github.com/handiism/broforce-map-downloader/internal/workshop"
)

type item struct {
	id      string
	title   string
	stars   int
	preview string
}

// fakeWorkshop serves browse pages, mirror pages and payloads.
type fakeWorkshop struct {
	mu       sync.Mutex
	url      string
	pages    map[string][]item // "Standard/Normal/1"
	noLink   map[string]bool
	exts     map[string]string // payload extension, "bfg" when unset
	failures map[string]int // remaining 503s per payload, -1 for always
	payloads map[string][]byte
	previews map[string][]byte
	fetched  map[string]int
}

func newFakeWorkshop(t *testing.T) *fakeWorkshop {
	f := &fakeWorkshop{
		pages:    map[string][]item{},
		noLink:   map[string]bool{},
		exts:     map[string]string{},
		failures: map[string]int{},
		payloads: map[string][]byte{},
		previews: map[string][]byte{},
		fetched:  map[string]int{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	f.url = srv.URL
	return f
}

func (f *fakeWorkshop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/browse/":
		q := r.URL.Query()
		tags := q["requiredtags[]"]
		key := tags[1] + "/" + tags[0] + "/" + q.Get("p")

		var b strings.Builder
		b.WriteString(`<html><body><div class="workshopBrowseItems">`)
		for _, it := range f.pages[key] {
			fmt.Fprintf(&b, `<div class="workshopItem">
				<a href="https://steamcommunity.com/sharedfiles/filedetails/?id=%s&searchtext=">
					<img class="workshopItemPreviewImage" src="%s">
				</a>
				<img class="fileRating" src="https://steamstatic.test/%d-star.png?v=2">
				<div class="workshopItemTitle">%s</div>
			</div>`, it.id, it.preview, it.stars, it.title)
		}
		b.WriteString(`</div></body></html>`)
		fmt.Fprint(w, b.String())

	case strings.HasPrefix(path, "/download/view/"):
		id := strings.TrimPrefix(path, "/download/view/")
		if f.noLink[id] {
			fmt.Fprint(w, `<html><body><p>Filename: map.bfg</p><p>Not cached yet</p></body></html>`)
			return
		}
		ext := f.exts[id]
		if ext == "" {
			ext = "bfg"
		}
		fmt.Fprintf(w, `<html><body><table><tr><td>Filename: %s.%s</td></tr></table>
			<a href="/files/%s">Download: %s.%s</a></body></html>`, id, ext, id, id, ext)

	case strings.HasPrefix(path, "/files/"):
		id := strings.TrimPrefix(path, "/files/")
		f.fetched[id]++
		if n := f.failures[id]; n != 0 {
			if n > 0 {
				f.failures[id]--
			}
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		if p, ok := f.payloads[id]; ok {
			w.Write(p)
			return
		}
		fmt.Fprintf(w, "payload-%s", id)

	case strings.HasPrefix(path, "/preview/"):
		w.Write(f.previews[strings.TrimPrefix(path, "/preview/")])

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeWorkshop) payloadRequests(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[id]
}

type harness struct {
	site     *fakeWorkshop
	settings *config.Settings
	fs       afero.Fs
	client   *httpc.Client

	mu     sync.Mutex
	events []ProgressEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	site := newFakeWorkshop(t)

	s := config.DefaultSettings()
	s.NumberOfPages = 3
	s.GameplayTypes = config.GameplayTypes{model.GameplayStandard}
	s.DifficultyLevels = config.DifficultyLevels{model.DifficultyNormal}
	s.MapsDir = "/maps"
	s.CatalogPath = ""
	s.BrowseURL = site.url + "/browse/"
	s.MirrorURL = site.url
	s.DownloadPauseMin, s.DownloadPauseMax = 0, 0
	s.HandleDuplicates = false
	require.NoError(t, s.Validate())

	log, _ := test.NewNullLogger()
	client := httpc.NewClient(httpc.ClientConfig{
		Logger: log,
		Retry: httpc.RetryPolicy{
			MaxAttempts: 4,
			BaseDelay:   time.Millisecond,
			Multiplier:  2,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
	})

	return &harness{site: site, settings: s, fs: afero.NewMemMapFs(), client: client}
}

func (h *harness) manager(t *testing.T, recorder Recorder) *Manager {
	t.Helper()
	log, _ := test.NewNullLogger()
	opts := Options{Fs: h.fs, Client: h.client, Logger: log, Recorder: recorder}
	return NewManager(h.settings, opts, func(e ProgressEvent) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	})
}

func (h *harness) run(t *testing.T, recorder Recorder) Summary {
	t.Helper()
	m := h.manager(t, recorder)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.StartDownloads(ctx))
	return m.Summary()
}

func (h *harness) exists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := afero.Exists(h.fs, path)
	require.NoError(t, err)
	return ok
}

func failedIDs(s Summary) []string {
	ids := make([]string, len(s.Failed))
	for i, f := range s.Failed {
		ids[i] = f.WorkshopID
	}
	return ids
}

func TestManager_DownloadsAndOrganizes(t *testing.T) {
	h := newHarness(t)
	h.site.pages["Standard/Normal/1"] = []item{
		{id: "111", title: "Jungle Run", stars: 4},
		{id: "222", title: "Boss: Rush", stars: 0},
	}
	h.site.failures["222"] = 2

	s := h.run(t, nil)

	assert.Empty(t, s.Failed)
	assert.Empty(t, s.PageErrors)
	assert.Equal(t, 2, s.PagesFetched)
	assert.Equal(t, 2, s.ListingsFound)
	require.Len(t, s.Downloaded, 2)
	assert.Equal(t, "/maps/4/114-111-Jungle Run.bfg", s.Downloaded[0].Path)
	assert.Equal(t, "/maps/0/110-222-Boss - Rush.bfg", s.Downloaded[1].Path)
	assert.Equal(t, 3, h.site.payloadRequests("222"))

	data, err := afero.ReadFile(h.fs, "/maps/0/110-222-Boss - Rush.bfg")
	require.NoError(t, err)
	assert.Equal(t, "payload-222", string(data))

	staging, err := afero.ReadDir(h.fs, "/maps/"+library.StagingDir)
	require.NoError(t, err)
	assert.Empty(t, staging)
}

func TestManager_RerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.site.pages["Standard/Normal/1"] = []item{
		{id: "111", title: "Jungle Run", stars: 4},
		{id: "222", title: "Boss Rush", stars: 3},
	}

	first := h.run(t, nil)
	require.Len(t, first.Downloaded, 2)

	second := h.run(t, nil)
	assert.Empty(t, second.Downloaded)
	assert.Empty(t, second.Failed)
	assert.Len(t, second.Skipped, 2)
	assert.Equal(t, 1, h.site.payloadRequests("111"))
	assert.Equal(t, 1, h.site.payloadRequests("222"))

	entries, err := afero.ReadDir(h.fs, "/maps/4")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestManager_SkipsPresentMapWithChangedListing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/maps/3/113-111-Old Name.bfg", []byte("old"), 0o644))
	h.site.pages["Standard/Normal/1"] = []item{{id: "111", title: "New Name", stars: 5}}

	s := h.run(t, nil)

	assert.Empty(t, s.Downloaded)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "111", s.Skipped[0].WorkshopID)
	assert.Zero(t, h.site.payloadRequests("111"))
	assert.False(t, h.exists(t, "/maps/5/115-111-New Name.bfg"))
}

func TestManager_LaterListingWins(t *testing.T) {
	h := newHarness(t)
	h.site.pages["Standard/Normal/1"] = []item{{id: "111", title: "Old", stars: 2}}
	h.site.pages["Standard/Normal/2"] = []item{
		{id: "555", title: "Other", stars: 1},
		{id: "111", title: "New", stars: 5},
	}

	s := h.run(t, nil)

	assert.Equal(t, 2, s.ListingsFound)
	assert.Equal(t, 3, s.PagesFetched)
	require.Len(t, s.Downloaded, 2)
	assert.Equal(t, "/maps/5/115-111-New.bfg", s.Downloaded[0].Path)
	assert.False(t, h.exists(t, "/maps/2/112-111-Old.bfg"))
	assert.Equal(t, 1, h.site.payloadRequests("111"))
}

func TestManager_FailingSiblingsAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.site.pages["Standard/Normal/1"] = []item{
		{id: "333", title: "Not Cached", stars: 2},
		{id: "111", title: "Fine", stars: 4},
		{id: "444", title: "Broken Host", stars: 1},
	}
	h.site.noLink["333"] = true
	h.site.failures["444"] = -1

	cat, err := catalog.Open(catalog.MemoryPath, nil)
	require.NoError(t, err)
	defer cat.Close()

	s := h.run(t, cat)

	require.Len(t, s.Downloaded, 1)
	assert.Equal(t, "/maps/4/114-111-Fine.bfg", s.Downloaded[0].Path)
	assert.Equal(t, []string{"333", "444"}, failedIDs(s))
	assert.ErrorIs(t, s.Failed[0].Err, workshop.ErrNoDownloadLink)
	assert.Equal(t, "Not Cached", s.Failed[0].Title)
	assert.Equal(t, 4, h.site.payloadRequests("444"))
	assert.Zero(t, h.site.payloadRequests("333"))
	assert.False(t, h.exists(t, "/maps/"+library.StagingDir+"/444.part"))

	var errorEvents int
	for _, e := range h.events {
		if e.Level == LevelError {
			errorEvents++
		}
	}
	assert.Equal(t, 2, errorEvents)

	ctx := context.Background()
	runs, err := cat.History(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, s.RunID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Downloaded)
	assert.Equal(t, 2, runs[0].Failed)
	assert.True(t, runs[0].Finished())

	rec, err := cat.GetMap(ctx, "444")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)

	rec, err = cat.GetMap(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDownloaded, rec.Status)
	assert.Equal(t, "/maps/4/114-111-Fine.bfg", rec.Path)
}

func TestManager_PageErrorsAreCounted(t *testing.T) {
	h := newHarness(t)
	h.settings.GameplayTypes = config.GameplayTypes{model.GameplayStandard, model.GameplayPuzzle}
	h.settings.BrowseURL = h.site.url + "/missing/"

	m := h.manager(t, nil)
	require.NoError(t, m.Initialize(context.Background()))

	s := m.Summary()
	assert.Zero(t, s.PagesFetched)
	assert.Len(t, s.PageErrors, 6)
	assert.Empty(t, m.Tasks())
}

func TestManager_Concurrent(t *testing.T) {
	h := newHarness(t)
	h.settings.MaxConcurrentDownloads = 4
	var items []item
	for i := 1; i <= 9; i++ {
		items = append(items, item{id: fmt.Sprintf("%d00", i), title: fmt.Sprintf("Map %d", i), stars: i % 6})
	}
	h.site.pages["Standard/Normal/1"] = items
	h.site.failures["500"] = -1

	s := h.run(t, nil)

	require.Len(t, s.Downloaded, 8)
	assert.Equal(t, []string{"500"}, failedIDs(s))
	for _, file := range s.Downloaded {
		assert.Equal(t, file.Listing.OrganizedPath("/maps", "bfg"), file.Path)
		assert.True(t, h.exists(t, file.Path))
	}
	assert.Equal(t, "100", s.Downloaded[0].Listing.WorkshopID)
	assert.Equal(t, "900", s.Downloaded[7].Listing.WorkshopID)
}

func TestManager_HandlesDuplicates(t *testing.T) {
	h := newHarness(t)
	h.settings.HandleDuplicates = true
	header := []byte(`<?xml version="1.0"?><CampaignHeader><name>Jungle Run</name><author>Rambro</author></CampaignHeader>`)
	h.site.payloads["111"] = header
	h.site.payloads["999"] = header
	h.site.pages["Standard/Normal/1"] = []item{
		{id: "111", title: "Jungle Run", stars: 4},
		{id: "999", title: "Jungle Run", stars: 2},
	}

	s := h.run(t, nil)

	assert.Equal(t, 1, s.DuplicatesMoved)
	assert.True(t, h.exists(t, "/maps/2/112-999-Jungle Run.bfg"))
	assert.True(t, h.exists(t, "/maps/duplicates/114-111-Jungle Run.bfg"))
	assert.True(t, h.exists(t, "/maps/duplicates/"+library.ReportName))

	again := h.run(t, nil)
	assert.Len(t, again.Skipped, 2)
	assert.Empty(t, again.Downloaded)
}

func TestManager_SavesPreviews(t *testing.T) {
	h := newHarness(t)
	h.settings.SavePreviews = true
	h.settings.PreviewMaxSize = 16

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 32))))
	h.site.previews["111.png"] = buf.Bytes()

	var small bytes.Buffer
	require.NoError(t, png.Encode(&small, image.NewRGBA(image.Rect(0, 0, 8, 4))))
	h.site.previews["333.png"] = small.Bytes()

	h.site.pages["Standard/Normal/1"] = []item{
		{id: "111", title: "Jungle Run", stars: 4, preview: h.site.url + "/preview/111.png"},
		{id: "222", title: "No Preview", stars: 4, preview: h.site.url + "/preview/missing.png"},
		{id: "333", title: "Small Preview", stars: 4, preview: h.site.url + "/preview/333.png"},
	}

	s := h.run(t, nil)

	require.Len(t, s.Downloaded, 3)
	assert.Empty(t, s.Failed)
	assert.Equal(t, 2, s.PreviewsSaved)

	data, err := afero.ReadFile(h.fs, "/maps/4/114-111-Jungle Run.jpg")
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())

	data, err = afero.ReadFile(h.fs, "/maps/4/114-333-Small Preview.jpg")
	require.NoError(t, err)
	img, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())

	// Previews must not count as maps on the next scan.
	set, err := library.ScanIDs(h.fs, "/maps")
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
}

func TestManager_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.site.pages["Standard/Normal/1"] = []item{{id: "111", title: "Jungle Run", stars: 4}}

	m := h.manager(t, nil)
	require.NoError(t, m.Initialize(context.Background()))
	require.Len(t, m.Tasks(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.StartDownloads(ctx)
	assert.True(t, IsCancelled(err))

	s := m.Summary()
	assert.Empty(t, s.Failed)
	assert.Empty(t, s.Downloaded)

	finished, total, _ := m.GetProgress()
	assert.EqualValues(t, 1, total)
	assert.LessOrEqual(t, finished, total)
}

func TestManager_RecordsPathOfPresentMap(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/maps/3/113-555-Old Name.bfg", []byte("x"), 0o644))
	h.site.pages["Standard/Normal/1"] = []item{{id: "555", title: "New Name", stars: 4}}

	cat, err := catalog.Open(catalog.MemoryPath, nil)
	require.NoError(t, err)
	defer cat.Close()

	s := h.run(t, cat)
	require.Len(t, s.Skipped, 1)
	assert.Zero(t, h.site.payloadRequests("555"))

	rec, err := cat.GetMap(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusSkipped, rec.Status)
	assert.Equal(t, "/maps/3/113-555-Old Name.bfg", rec.Path)
}

func TestManager_JpgPayloadIsAMap(t *testing.T) {
	h := newHarness(t)
	h.settings.SavePreviews = true

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	h.site.previews["777.png"] = buf.Bytes()
	h.site.exts["777"] = "jpg"
	h.site.pages["Standard/Normal/1"] = []item{
		{id: "777", title: "Photo Map", stars: 4, preview: h.site.url + "/preview/777.png"},
	}

	s := h.run(t, nil)
	require.Len(t, s.Downloaded, 1)
	assert.Equal(t, "/maps/"+library.NonMapDir+"/114-777-Photo Map.jpg", s.Downloaded[0].Path)
	assert.Zero(t, s.PreviewsSaved)

	data, err := afero.ReadFile(h.fs, "/maps/"+library.NonMapDir+"/114-777-Photo Map.jpg")
	require.NoError(t, err)
	assert.Equal(t, "payload-777", string(data))

	again := h.run(t, nil)
	assert.Empty(t, again.Downloaded)
	assert.Len(t, again.Skipped, 1)
	assert.Equal(t, 1, h.site.payloadRequests("777"))
}
