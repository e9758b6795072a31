package library

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/handiism/broforce-map-downloader/internal/model"
)

// Folder names inside the maps directory.
const (
	StagingDir    = ".staging"
	DuplicatesDir = "duplicates"
)

// IDSet is the set of workshop ids present in the maps directory.
// It is safe for concurrent use.
type IDSet struct {
	mu  sync.RWMutex
	ids map[string]string // id -> path
}

// NewIDSet returns an empty set.
func NewIDSet() *IDSet {
	return &IDSet{ids: make(map[string]string)}
}

// Has reports whether id is present.
func (s *IDSet) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Path returns where id was found.
func (s *IDSet) Path(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.ids[id]
	return p, ok
}

// Add records id at path. It reports false if id was already present.
func (s *IDSet) Add(id, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = path
	return true
}

// Len returns the number of ids.
func (s *IDSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// ScanIDs walks mapsDir once and collects the workshop id of every file
// named after the map naming scheme, in any sub folder except staging.
// A .jpg beside a map with the same base name is that map's preview and is
// ignored; a lone .jpg is a map payload like any other.
// A missing directory yields an empty set.
func ScanIDs(fs afero.Fs, mapsDir string) (*IDSet, error) {
	set := NewIDSet()

	type candidate struct{ id, path string }
	var (
		jpgs  []candidate
		stems = make(map[string]bool)
	)

	exists, err := afero.DirExists(fs, mapsDir)
	if err != nil || !exists {
		return set, err
	}

	err = afero.Walk(fs, mapsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == StagingDir {
				return filepath.SkipDir
			}
			return nil
		}
		fn, ok := model.ParseFileName(info.Name())
		if !ok {
			return nil
		}
		if strings.EqualFold(fn.Ext, PreviewExtension) {
			jpgs = append(jpgs, candidate{fn.WorkshopID, path})
			return nil
		}
		stems[stem(path)] = true
		set.Add(fn.WorkshopID, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, c := range jpgs {
		if !stems[stem(c.path)] {
			set.Add(c.id, c.path)
		}
	}
	return set, nil
}

func stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
