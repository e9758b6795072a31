package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	ioutils "github.com/handiism/broforce-map-downloader/internal/io"
	"github.com/handiism/broforce-map-downloader/internal/model"
)

// File extensions in the maps directory.
const (
	// DefaultExtension is used when the mirror did not name one.
	DefaultExtension = "bfg"
	PreviewExtension = "jpg"
)

// NonMapDir holds payloads whose extension is not DefaultExtension.
const NonMapDir = "non-bfg"

// ErrNotStaged is returned when a task has neither a staged payload nor an
// already organized copy.
var ErrNotStaged = errors.New("no staged payload")

// Organizer moves staged payloads to their final place in the maps directory.
type Organizer struct {
	fs      afero.Fs
	mapsDir string
	log     logrus.FieldLogger
}

// NewOrganizer creates an organizer rooted at mapsDir.
func NewOrganizer(fs afero.Fs, mapsDir string, log logrus.FieldLogger) *Organizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Organizer{fs: fs, mapsDir: mapsDir, log: log}
}

// StagingDir returns the folder payloads are downloaded into.
func (o *Organizer) StagingDir() string {
	return filepath.Join(o.mapsDir, StagingDir)
}

// Path returns where a payload for listing with extension ext belongs:
// the rating folder for maps, NonMapDir for anything else.
func (o *Organizer) Path(listing *model.MapListing, ext string) string {
	if isMapExt(ext) {
		return listing.OrganizedPath(o.mapsDir, ext)
	}
	return filepath.Join(o.mapsDir, NonMapDir, listing.FileName(ext))
}

// Organize places the task's staged payload at Path, for maps
// <mapsDir>/<rating>/<type><difficulty><rating>-<id>-<title>.bfg.
//
// If a file with the same workshop id already sits in the target folder the
// staged payload is dropped and the existing file is returned, so running
// Organize twice for the same map leaves a single file.
func (o *Organizer) Organize(ctx context.Context, task *model.DownloadTask) (*model.OrganizedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	listing := task.Listing
	ext := task.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	dst := o.Path(listing, ext)

	existing, err := o.findInDir(filepath.Dir(dst), listing.WorkshopID, ext)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		if task.StagingPath != "" {
			if err := o.fs.Remove(task.StagingPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				o.log.WithError(err).WithField("path", task.StagingPath).Warn("remove staged payload")
			}
		}
		o.log.WithFields(logrus.Fields{
			"id":   listing.WorkshopID,
			"path": existing,
		}).Debug("map already organized")
		return o.organized(listing, existing)
	}

	if task.StagingPath == "" {
		return nil, fmt.Errorf("organize %s: %w", listing.WorkshopID, ErrNotStaged)
	}
	if _, staged, err := ioutils.FileSize(o.fs, task.StagingPath); err != nil {
		return nil, err
	} else if !staged {
		return nil, fmt.Errorf("organize %s: %w", listing.WorkshopID, ErrNotStaged)
	}

	if err := ioutils.MoveFile(ctx, o.fs, task.StagingPath, dst); err != nil {
		return nil, fmt.Errorf("organize %s: %w", listing.WorkshopID, err)
	}
	o.log.WithFields(logrus.Fields{
		"id":   listing.WorkshopID,
		"path": dst,
	}).Debug("map organized")

	return o.organized(listing, dst)
}

// TidyLoose moves named files lying directly in the maps directory into
// their rating folder, or NonMapDir for other extensions. Files that do not
// follow the naming scheme are left alone. It returns the number of files
// moved.
func (o *Organizer) TidyLoose(ctx context.Context) (int, error) {
	entries, err := afero.ReadDir(o.fs, o.mapsDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fn, ok := model.ParseFileName(entry.Name())
		if !ok {
			continue
		}
		rating, ok := fn.StarRating()
		if !ok {
			continue
		}

		src := filepath.Join(o.mapsDir, entry.Name())
		dir := fmt.Sprint(rating)
		if !isMapExt(fn.Ext) {
			dir = NonMapDir
		}
		dst := filepath.Join(o.mapsDir, dir, entry.Name())
		if err := ioutils.MoveFile(ctx, o.fs, src, dst); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (o *Organizer) findInDir(dir, workshopID, ext string) (string, error) {
	entries, err := afero.ReadDir(o.fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if fn, ok := model.ParseFileName(entry.Name()); ok && fn.WorkshopID == workshopID && fn.Ext == ext {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", nil
}

func isMapExt(ext string) bool {
	return strings.EqualFold(strings.TrimPrefix(ext, "."), DefaultExtension)
}

func (o *Organizer) organized(listing *model.MapListing, path string) (*model.OrganizedFile, error) {
	size, _, err := ioutils.FileSize(o.fs, path)
	if err != nil {
		return nil, err
	}
	return &model.OrganizedFile{Listing: listing, Path: path, Size: size}, nil
}
