package download

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/handiism/broforce-map-downloader/internal/catalog"
	"github.com/handiism/broforce-map-downloader/internal/config"
	"github.com/handiism/broforce-map-downloader/internal/http"
	ioutils "github.com/handiism/broforce-map-downloader/internal/io"
	"github.com/handiism/broforce-map-downloader/internal/library"
	"github.com/handiism/broforce-map-downloader/internal/model"
	"github.com/handiism/broforce-map-downloader/internal/workshop"
)

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// ProgressEvent represents a download progress update.
type ProgressEvent struct {
	Message string
	Level   ProgressLevel
}

// Recorder stores run history. *catalog.Catalog implements it.
type Recorder interface {
	StartRun(ctx context.Context) (*catalog.Run, error)
	RecordMap(ctx context.Context, runID uuid.UUID, listing *model.MapListing, status catalog.Status, path string, cause error) error
	FinishRun(ctx context.Context, run *catalog.Run) error
}

// Options are the collaborators of a Manager. Zero values select the
// real implementations.
type Options struct {
	Fs       afero.Fs           // defaults to the OS filesystem
	Client   *http.Client       // defaults to a client built from the settings
	Recorder Recorder           // nil disables run history
	Logger   logrus.FieldLogger // defaults to the logrus standard logger

	// Sleep waits between downloads. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Failure is a map that could not be downloaded or organized.
type Failure struct {
	WorkshopID string
	Title      string
	Err        error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s (%s): %v", f.Title, f.WorkshopID, f.Err)
}

// Summary is the outcome of a run.
type Summary struct {
	PagesFetched  int
	PageErrors    []error
	ListingsFound int
	ParseSkipped  int
	Filtered      int

	Downloaded []*model.OrganizedFile
	Skipped    []*model.MapListing // already present locally
	Failed     []Failure

	PreviewsSaved   int
	DuplicatesMoved int
	RunID           uuid.UUID // zero when no recorder is configured
}

// Manager runs the listing → download → organize pipeline.
type Manager struct {
	settings  *config.Settings
	fs        afero.Fs
	client    *http.Client
	fetcher   *workshop.Fetcher
	mirror    *workshop.Mirror
	organizer *library.Organizer
	images    *ioutils.ImageService
	recorder  Recorder
	log       logrus.FieldLogger
	sleep     func(ctx context.Context, d time.Duration) error

	present *library.IDSet
	tasks   []*model.DownloadTask
	staged  []bool
	run     *catalog.Run

	totalMaps     int32
	finishedMaps  int32
	receivedBytes int64

	summary    Summary
	onProgress func(ProgressEvent)
	mu         sync.Mutex
}

// NewManager creates a new download Manager.
func NewManager(settings *config.Settings, opts Options, onProgress func(ProgressEvent)) *Manager {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	client := opts.Client
	if client == nil {
		client = http.NewClient(settings.ClientConfig(log))
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = waitFor
	}

	return &Manager{
		settings:   settings,
		fs:         fs,
		client:     client,
		fetcher:    workshop.NewFetcher(client, settings, log),
		mirror:     workshop.NewMirror(client, settings.MirrorURL),
		organizer:  library.NewOrganizer(fs, settings.MapsDir, log),
		images:     ioutils.NewImageService(),
		recorder:   opts.Recorder,
		log:        log,
		sleep:      sleep,
		onProgress: onProgress,
	}
}

// Initialize scans the maps directory and walks the workshop listing pages.
//
// Listings are de-duplicated by workshop id (the last one seen wins) and
// split into maps already present locally and download tasks. Page
// failures are reported and counted; only cancellation or an unreadable
// maps directory abort Initialize.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := ioutils.EnsureDir(m.fs, m.settings.MapsDir); err != nil {
		return fmt.Errorf("create maps directory: %w", err)
	}
	if moved, err := m.organizer.TidyLoose(ctx); err != nil {
		m.progress(ProgressEvent{Message: fmt.Sprintf("Error organizing loose maps: %v", err), Level: LevelWarning})
	} else if moved > 0 {
		m.progress(ProgressEvent{Message: fmt.Sprintf("Moved %d loose maps into rating folders", moved), Level: LevelVerbose})
	}

	present, err := library.ScanIDs(m.fs, m.settings.MapsDir)
	if err != nil {
		return fmt.Errorf("scan maps directory: %w", err)
	}
	m.present = present
	m.progress(ProgressEvent{Message: fmt.Sprintf("Found %d maps in %s", present.Len(), m.settings.MapsDir), Level: LevelVerbose})

	var (
		order    []string
		listings = make(map[string]*model.MapListing)
	)
	for page, err := range m.fetcher.Pages(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.summary.PageErrors = append(m.summary.PageErrors, err)
			m.progress(ProgressEvent{Message: err.Error(), Level: LevelError})
			continue
		}

		m.summary.PagesFetched++
		m.summary.ParseSkipped += len(page.Skipped)
		m.summary.Filtered += page.Filtered
		m.progress(ProgressEvent{
			Message: fmt.Sprintf("Fetched %s - %s page %d: %d maps", page.GameplayType, page.Difficulty, page.Number, len(page.Listings)),
			Level:   LevelVerbose,
		})

		for _, l := range page.Listings {
			if _, seen := listings[l.WorkshopID]; !seen {
				order = append(order, l.WorkshopID)
			}
			listings[l.WorkshopID] = l
		}
	}
	m.summary.ListingsFound = len(order)

	stagingDir := m.organizer.StagingDir()
	for _, id := range order {
		l := listings[id]
		if m.present.Has(id) {
			m.summary.Skipped = append(m.summary.Skipped, l)
			continue
		}
		m.tasks = append(m.tasks, model.NewDownloadTask(l, m.mirror.ViewURL(id), stagingDir))
	}
	m.staged = make([]bool, len(m.tasks))
	m.totalMaps = int32(len(m.tasks))

	m.progress(ProgressEvent{
		Message: fmt.Sprintf("Found %d maps: %d new, %d already downloaded", len(order), len(m.tasks), len(m.summary.Skipped)),
		Level:   LevelInfo,
	})
	return nil
}

// StartDownloads downloads every task, then organizes the staged payloads
// in listing order, saves previews and handles duplicates.
//
// A map that fails is recorded in the summary and the others continue.
// The returned error is non-nil only when ctx was cancelled; maps staged
// before cancellation are still organized.
func (m *Manager) StartDownloads(ctx context.Context) error {
	m.startRun(ctx)
	for _, l := range m.summary.Skipped {
		path, _ := m.present.Path(l.WorkshopID)
		m.record(ctx, l, catalog.StatusSkipped, path, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.settings.MaxConcurrentDownloads))

	for i, task := range m.tasks {
		g.Go(func() error {
			if i > 0 {
				if err := m.pause(gctx); err != nil {
					return nil
				}
			}
			m.downloadTask(gctx, i, task)
			return nil
		})
	}
	_ = g.Wait()

	// Finish bookkeeping even when interrupted.
	finishCtx := context.WithoutCancel(ctx)

	for i, task := range m.tasks {
		if !m.staged[i] {
			continue
		}
		file, err := m.organizer.Organize(finishCtx, task)
		if err != nil {
			m.fail(finishCtx, task.Listing, fmt.Errorf("organize: %w", err))
			continue
		}
		m.summary.Downloaded = append(m.summary.Downloaded, file)
		m.record(finishCtx, task.Listing, catalog.StatusDownloaded, file.Path, nil)
		m.progress(ProgressEvent{Message: fmt.Sprintf("Saved %s", filepath.Base(file.Path)), Level: LevelSuccess})

		if m.settings.SavePreviews && ctx.Err() == nil {
			m.savePreview(ctx, file)
		}
	}

	if m.settings.HandleDuplicates && ctx.Err() == nil {
		m.handleDuplicates(ctx)
	}

	m.finishRun(finishCtx)
	return ctx.Err()
}

// Summary returns the outcome collected so far.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.summary
	s.PageErrors = append([]error(nil), s.PageErrors...)
	s.Downloaded = append([]*model.OrganizedFile(nil), s.Downloaded...)
	s.Skipped = append([]*model.MapListing(nil), s.Skipped...)
	s.Failed = append([]Failure(nil), s.Failed...)
	return s
}

// Tasks returns the maps Initialize selected for download.
func (m *Manager) Tasks() []*model.DownloadTask {
	return m.tasks
}

// GetProgress returns current download progress.
func (m *Manager) GetProgress() (finished, total int32, received int64) {
	return atomic.LoadInt32(&m.finishedMaps), m.totalMaps, atomic.LoadInt64(&m.receivedBytes)
}

func (m *Manager) downloadTask(ctx context.Context, i int, task *model.DownloadTask) {
	defer atomic.AddInt32(&m.finishedMaps, 1)

	l := task.Listing
	if m.present.Has(l.WorkshopID) {
		m.mu.Lock()
		m.summary.Skipped = append(m.summary.Skipped, l)
		m.mu.Unlock()
		path, _ := m.present.Path(l.WorkshopID)
		m.record(ctx, l, catalog.StatusSkipped, path, nil)
		return
	}

	m.progress(ProgressEvent{Message: fmt.Sprintf("Downloading %s (%s)", l.Title, l.WorkshopID), Level: LevelVerbose})

	if err := m.mirror.Resolve(ctx, task); err != nil {
		if ctx.Err() == nil {
			m.fail(ctx, l, fmt.Errorf("resolve mirror: %w", err))
		}
		return
	}

	var last int64
	_, err := m.client.DownloadFile(ctx, m.fs, task.DownloadURL, task.StagingPath, func(written, _ int64) {
		atomic.AddInt64(&m.receivedBytes, written-last)
		last = written
	})
	if err != nil {
		atomic.AddInt64(&m.receivedBytes, -last)
		if ctx.Err() == nil {
			m.fail(ctx, l, fmt.Errorf("download: %w", err))
		}
		return
	}

	m.present.Add(l.WorkshopID, task.StagingPath)
	m.mu.Lock()
	m.staged[i] = true
	m.mu.Unlock()
}

func (m *Manager) fail(ctx context.Context, l *model.MapListing, err error) {
	m.mu.Lock()
	m.summary.Failed = append(m.summary.Failed, Failure{WorkshopID: l.WorkshopID, Title: l.Title, Err: err})
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"id": l.WorkshopID, "title": l.Title}).WithError(err).Error("map failed")
	m.progress(ProgressEvent{Message: fmt.Sprintf("Failed %s (%s): %v", l.Title, l.WorkshopID, err), Level: LevelError})
	m.record(ctx, l, catalog.StatusFailed, "", err)
}

// savePreview stores the listing thumbnail next to the map. Failures are
// warnings only.
func (m *Manager) savePreview(ctx context.Context, file *model.OrganizedFile) {
	path := strings.TrimSuffix(file.Path, filepath.Ext(file.Path)) + "." + library.PreviewExtension
	if file.Listing.PreviewURL == "" || path == file.Path {
		return
	}
	warn := func(err error) {
		m.progress(ProgressEvent{Message: fmt.Sprintf("Preview for %s: %v", file.Listing.Title, err), Level: LevelWarning})
	}

	data, err := m.client.Get(ctx, file.Listing.PreviewURL)
	if err != nil {
		warn(err)
		return
	}
	size := m.settings.PreviewMaxSize
	fits, err := m.images.FitsWithin(data, size, size)
	if err != nil {
		warn(err)
		return
	}
	if fits {
		data, err = m.images.ConvertToJPEG(ctx, data)
	} else {
		data, err = m.images.ResizeImage(ctx, data, size, size)
	}
	if err != nil {
		warn(err)
		return
	}

	if err := ioutils.WriteFile(ctx, m.fs, path, data); err != nil {
		warn(err)
		return
	}
	m.summary.PreviewsSaved++
}

func (m *Manager) handleDuplicates(ctx context.Context) {
	groups, err := library.FindDuplicates(m.fs, m.settings.MapsDir)
	if err == nil {
		m.summary.DuplicatesMoved, err = library.ProcessDuplicates(ctx, m.fs, m.settings.MapsDir, groups)
	}
	if err != nil {
		m.progress(ProgressEvent{Message: fmt.Sprintf("Error handling duplicates: %v", err), Level: LevelWarning})
		return
	}
	if m.summary.DuplicatesMoved > 0 {
		m.progress(ProgressEvent{
			Message: fmt.Sprintf("Moved %d duplicate maps to %s", m.summary.DuplicatesMoved, library.DuplicatesDir),
			Level:   LevelInfo,
		})
	}
}

// pause waits a random time in [DownloadPauseMin, DownloadPauseMax].
func (m *Manager) pause(ctx context.Context) error {
	lo, hi := m.settings.DownloadPauseMin, m.settings.DownloadPauseMax
	if hi <= 0 {
		return ctx.Err()
	}
	d := lo
	if hi > lo {
		d += rand.N(hi - lo + 1)
	}
	return m.sleep(ctx, d)
}

func (m *Manager) startRun(ctx context.Context) {
	if m.recorder == nil {
		return
	}
	run, err := m.recorder.StartRun(ctx)
	if err != nil {
		m.log.WithError(err).Warn("catalog: start run")
		m.recorder = nil
		return
	}
	m.run = run
	m.summary.RunID = run.ID
}

func (m *Manager) finishRun(ctx context.Context) {
	if m.recorder == nil || m.run == nil {
		return
	}
	m.run.PagesFetched = m.summary.PagesFetched
	m.run.ListingsFound = m.summary.ListingsFound
	m.run.Downloaded = len(m.summary.Downloaded)
	m.run.Skipped = len(m.summary.Skipped)
	m.run.Failed = len(m.summary.Failed)
	if err := m.recorder.FinishRun(ctx, m.run); err != nil {
		m.log.WithError(err).Warn("catalog: finish run")
	}
}

func (m *Manager) record(ctx context.Context, l *model.MapListing, status catalog.Status, path string, cause error) {
	if m.recorder == nil || m.run == nil {
		return
	}
	if err := m.recorder.RecordMap(ctx, m.run.ID, l, status, path, cause); err != nil {
		m.log.WithError(err).WithField("id", l.WorkshopID).Warn("catalog: record map")
	}
}

func (m *Manager) progress(event ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}

func waitFor(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// IsCancelled reports whether err stems from an interrupted run.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
