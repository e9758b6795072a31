package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/handiism/broforce-map-downloader/internal/catalog"
	"github.com/handiism/broforce-map-downloader/internal/config"
	"github.com/handiism/broforce-map-downloader/internal/download"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

const timeFormat = "2006-01-02 15:04:05"

func main() {
	os.Exit(run())
}

func run() int {
	// Command line flags
	var (
		configFlag  = flag.String("config", config.DefaultPath, "Path to config file (created if missing)")
		mapsFlag    = flag.String("maps", "", "Maps directory (overrides config)")
		pagesFlag   = flag.Int("pages", 0, "Number of pages per category (overrides config)")
		yesFlag     = flag.Bool("yes", false, "Start without asking for confirmation")
		verboseFlag = flag.Bool("verbose", false, "Show verbose output")
		dryRunFlag  = flag.Bool("dry-run", false, "List new maps without downloading")
		historyFlag = flag.Int("history", 0, "Show the last N runs from the catalog and exit")
		runFlag     = flag.String("run", "", "Show one run from the catalog by id and exit")
	)
	flag.Parse()

	settings, err := loadSettings(*configFlag, *mapsFlag, *pagesFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintln(os.Stderr, "Please correct the config file and restart the program.")
		return exitError
	}

	log, closeLog, err := settings.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		return exitError
	}
	defer closeLog()
	if settings.LogFile == "" && !*verboseFlag && log.GetLevel() > logrus.WarnLevel {
		// Diagnostics would tear through the progress bar.
		log.SetLevel(logrus.WarnLevel)
	}

	var cat *catalog.Catalog
	if settings.CatalogPath != "" {
		cat, err = catalog.Open(settings.CatalogPath, log)
		if err != nil {
			log.WithError(err).Warn("catalog unavailable, run history will not be recorded")
		} else {
			defer cat.Close()
		}
	}

	if *historyFlag > 0 {
		return printHistory(os.Stdout, cat, *historyFlag)
	}
	if *runFlag != "" {
		return printRun(os.Stdout, cat, *runFlag)
	}

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cancelling...")
		cancel()
	}()

	fmt.Println("💣 Broforce Map Downloader")
	fmt.Println(rule)
	for _, line := range settings.Describe() {
		fmt.Println("  " + line)
	}
	fmt.Println(rule)
	fmt.Println()

	out := &console{verbose: *verboseFlag}
	opts := download.Options{Logger: log}
	if cat != nil {
		opts.Recorder = cat
	}
	manager := download.NewManager(settings, opts, out.print)

	if err := manager.Initialize(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nCancelled.")
			return exitInterrupted
		}
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		return exitError
	}

	tasks := manager.Tasks()
	if len(tasks) == 0 {
		fmt.Println()
		fmt.Println("************      NO NEW MAPS      ************")
		fmt.Println("There are no new maps found to download.")
		return exitOK
	}

	if *dryRunFlag {
		fmt.Println("\n[Dry run - not downloading]")
		for _, task := range tasks {
			l := task.Listing
			fmt.Printf("  %s  %-40s  %s - %s, %d★%s\n", l.WorkshopID, l.Title, l.GameplayType, l.Difficulty, l.StarRating, lastFailure(ctx, cat, l.WorkshopID))
		}
		return exitOK
	}

	if !*yesFlag {
		start := true
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Download %d new maps?", len(tasks))).
			Affirmative("Start").
			Negative("Quit").
			Value(&start).
			Run()
		if errors.Is(err, huh.ErrUserAborted) {
			return exitInterrupted
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		if !start {
			return exitOK
		}
	}

	fmt.Println("\n📥 Starting downloads...")
	fmt.Println()

	bar := progressbar.NewOptions(len(tasks),
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionSetItsString("map"),
		progressbar.OptionShowIts(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	out.attach(bar)
	stopTicker := pollProgress(manager, bar)

	err = manager.StartDownloads(ctx)
	stopTicker()
	_ = bar.Finish()
	out.attach(nil)

	printSummary(os.Stdout, manager.Summary())

	if download.IsCancelled(err) {
		fmt.Println("\nDownload cancelled.")
		return exitInterrupted
	}
	return exitOK
}

func loadSettings(path, mapsDir string, pages int) (*config.Settings, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := settings.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if mapsDir != "" {
		settings.MapsDir = mapsDir
	}
	if pages != 0 {
		settings.NumberOfPages = pages
	}
	return settings, settings.Validate()
}

// console prints manager events, keeping the progress bar intact.
type console struct {
	verbose bool

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func (c *console) attach(bar *progressbar.ProgressBar) {
	c.mu.Lock()
	c.bar = bar
	c.mu.Unlock()
}

func (c *console) print(event download.ProgressEvent) {
	if event.Level == download.LevelVerbose && !c.verbose {
		return
	}

	var prefix string
	switch event.Level {
	case download.LevelError:
		prefix = "❌ "
	case download.LevelWarning:
		prefix = "⚠️  "
	case download.LevelSuccess:
		prefix = "✅ "
	case download.LevelInfo:
		prefix = "ℹ️  "
	default:
		prefix = "   "
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Clear()
	}
	fmt.Println(prefix + event.Message)
	if c.bar != nil {
		_ = c.bar.RenderBlank()
	}
}

// pollProgress mirrors the manager's counters into bar until stopped.
func pollProgress(manager *download.Manager, bar *progressbar.ProgressBar) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				finished, _, _ := manager.GetProgress()
				_ = bar.Set(int(finished))
				return
			case <-ticker.C:
				finished, _, _ := manager.GetProgress()
				_ = bar.Set(int(finished))
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func printSummary(w io.Writer, s download.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "✨ Complete! %d downloaded, %d already present, %d failed\n",
		len(s.Downloaded), len(s.Skipped), len(s.Failed))
	fmt.Fprintf(w, "   Pages fetched: %d (%d failed), listings found: %d",
		s.PagesFetched, len(s.PageErrors), s.ListingsFound)
	if s.ParseSkipped > 0 {
		fmt.Fprintf(w, ", unreadable entries: %d", s.ParseSkipped)
	}
	fmt.Fprintln(w)
	if s.DuplicatesMoved > 0 {
		fmt.Fprintf(w, "   Duplicates moved: %d\n", s.DuplicatesMoved)
	}
	if s.PreviewsSaved > 0 {
		fmt.Fprintf(w, "   Previews saved: %d\n", s.PreviewsSaved)
	}

	if len(s.Failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed maps:")
		for _, f := range s.Failed {
			fmt.Fprintf(w, "  ✗ %s\n", f)
		}
	}
}

const noCatalog = "No catalog configured (catalog_path is empty or unavailable)."

func printHistory(w io.Writer, cat *catalog.Catalog, limit int) int {
	if cat == nil {
		fmt.Fprintln(os.Stderr, noCatalog)
		return exitError
	}
	runs, err := cat.History(context.Background(), limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
		return exitError
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return exitOK
	}

	fmt.Fprintf(w, "%-36s  %-19s  %-8s  %5s  %10s  %7s  %6s\n", "Run", "Started", "Status", "Pages", "Downloaded", "Skipped", "Failed")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-19s  %-8s  %5d  %10d  %7d  %6d\n",
			r.ID, r.StartedAt.Local().Format(timeFormat), runStatus(&r),
			r.PagesFetched, r.Downloaded, r.Skipped, r.Failed)
	}
	return exitOK
}

// printRun shows one run and the maps whose latest outcome it recorded.
func printRun(w io.Writer, cat *catalog.Catalog, id string) int {
	if cat == nil {
		fmt.Fprintln(os.Stderr, noCatalog)
		return exitError
	}
	runID, err := uuid.Parse(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid run id %q: %v\n", id, err)
		return exitError
	}

	ctx := context.Background()
	r, err := cat.GetRun(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading run: %v\n", err)
		return exitError
	}
	maps, err := cat.MapsForRun(ctx, runID, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading run maps: %v\n", err)
		return exitError
	}

	fmt.Fprintf(w, "Run %s (%s)\n", r.ID, runStatus(r))
	fmt.Fprintf(w, "  Started:  %s\n", r.StartedAt.Local().Format(timeFormat))
	if r.Finished() {
		fmt.Fprintf(w, "  Finished: %s\n", r.FinishedAt.Local().Format(timeFormat))
	}
	fmt.Fprintf(w, "  Pages: %d, listings: %d, downloaded: %d, skipped: %d, failed: %d\n",
		r.PagesFetched, r.ListingsFound, r.Downloaded, r.Skipped, r.Failed)

	if len(maps) > 0 {
		fmt.Fprintln(w)
	}
	for _, rec := range maps {
		line := fmt.Sprintf("  %-10s  %s  %s", rec.Status, rec.WorkshopID, rec.Title)
		switch {
		case rec.Error != "":
			line += ": " + rec.Error
		case rec.Path != "":
			line += " -> " + rec.Path
		}
		fmt.Fprintln(w, line)
	}
	return exitOK
}

func runStatus(r *catalog.Run) string {
	if r.Finished() {
		return "finished"
	}
	return "aborted"
}

// lastFailure annotates a dry-run line with the map's previous failure.
func lastFailure(ctx context.Context, cat *catalog.Catalog, workshopID string) string {
	if cat == nil {
		return ""
	}
	rec, err := cat.GetMap(ctx, workshopID)
	if err != nil || rec.Status != catalog.StatusFailed {
		return ""
	}
	return "  (failed before: " + rec.Error + ")"
}
