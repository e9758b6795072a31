package workshop

import (
	"context"
	"strings"

	"github.com/handiism/broforce-map-downloader/internal/http"
	"github.com/handiism/broforce-map-downloader/internal/model"
)

// Mirror resolves workshop items to direct download links on the mirror site.
type Mirror struct {
	client  PageGetter
	baseURL string
}

// NewMirror creates a Mirror rooted at baseURL (e.g. "http://steamworkshop.download").
func NewMirror(client PageGetter, baseURL string) *Mirror {
	return &Mirror{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// ViewURL returns the mirror page for a workshop id.
func (m *Mirror) ViewURL(workshopID string) string {
	return m.baseURL + "/download/view/" + workshopID
}

// Resolve fetches the task's mirror page and fills in DownloadURL and Extension.
//
// A page that loads but lacks the file name or the link is a permanent
// failure for this map; retrying would fetch the same page again.
func (m *Mirror) Resolve(ctx context.Context, task *model.DownloadTask) error {
	if task.MirrorURL == "" {
		task.MirrorURL = m.ViewURL(task.Listing.WorkshopID)
	}

	body, err := m.client.FetchString(ctx, task.MirrorURL)
	if err != nil {
		return err
	}

	file, err := ParseMirrorPage(strings.NewReader(body), task.MirrorURL)
	if err != nil {
		return http.Permanent(err)
	}

	task.DownloadURL = file.DownloadURL
	task.Extension = file.Extension
	return nil
}
