package library

import (
	"bytes"
	"cmp"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	ioutils "github.com/handiism/broforce-map-downloader/internal/io"
	"github.com/handiism/broforce-map-downloader/internal/model"
)

// ReportName is the file listing duplicate groups inside the duplicates folder.
const ReportName = "@duplicates.txt"

// UnknownAuthor groups maps whose header names no author.
const UnknownAuthor = "<unknown>"

// headerWindow is how much of a .bfg file is searched for the header.
const headerWindow = 1024

var (
	headerStart = []byte("<?xml")
	headerEnd   = []byte("</CampaignHeader>")
)

// CampaignHeader is the XML block a Broforce map file starts with.
type CampaignHeader struct {
	XMLName                xml.Name `xml:"CampaignHeader"`
	Name                   string   `xml:"name"`
	Author                 string   `xml:"author"`
	Description            string   `xml:"description"`
	Length                 string   `xml:"length"`
	MD5                    string   `xml:"md5"`
	HasBrotalityScoreboard string   `xml:"hasBrotalityScoreboard"`
	HasTimeScoreBoard      string   `xml:"hasTimeScoreBoard"`
	GameMode               string   `xml:"gameMode"`
}

// ReadCampaignHeader reads the header from the first KiB of the map at path.
// A file without a readable header yields a zero header and no error.
func ReadCampaignHeader(fs afero.Fs, path string) (CampaignHeader, error) {
	f, err := fs.Open(path)
	if err != nil {
		return CampaignHeader{}, err
	}
	defer f.Close()

	buf := make([]byte, headerWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return CampaignHeader{}, err
	}
	return ParseCampaignHeader(buf[:n]), nil
}

// ParseCampaignHeader extracts the header from raw map bytes.
func ParseCampaignHeader(data []byte) CampaignHeader {
	start := bytes.Index(data, headerStart)
	end := bytes.Index(data, headerEnd)
	if start == -1 || end == -1 || end < start {
		return CampaignHeader{}
	}
	raw := bytes.ToValidUTF8(data[start:end+len(headerEnd)], nil)

	dec := xml.NewDecoder(bytes.NewReader(raw))
	// The declaration may name an encoding; the window is already valid UTF-8.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	var h CampaignHeader
	if err := dec.Decode(&h); err != nil {
		return CampaignHeader{}
	}
	h.Name = strings.TrimSpace(h.Name)
	h.Author = strings.TrimSpace(h.Author)
	return h
}

// MapFile is one map file found on disk.
type MapFile struct {
	WorkshopID string
	Size       int64
	Path       string
}

// DuplicateGroup is a map uploaded under more than one workshop id.
// Main is the newest upload (highest id); Duplicates are ordered newest first.
type DuplicateGroup struct {
	Title      string
	Author     string
	Main       MapFile
	Duplicates []MapFile
}

type groupKey struct{ title, author string }

// FindDuplicates scans every .bfg file below mapsDir, including the
// duplicates folder, and groups them by title and author. Only groups with
// more than one file are returned, sorted by title then author.
func FindDuplicates(fs afero.Fs, mapsDir string) ([]DuplicateGroup, error) {
	exists, err := afero.DirExists(fs, mapsDir)
	if err != nil || !exists {
		return nil, err
	}

	files := make(map[groupKey][]MapFile)
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
		if !ok || fn.Title == "" || !strings.EqualFold(fn.Ext, DefaultExtension) {
			return nil
		}

		header, err := ReadCampaignHeader(fs, path)
		if err != nil {
			return fmt.Errorf("read header %s: %w", path, err)
		}
		author := header.Author
		if author == "" {
			author = UnknownAuthor
		}

		key := groupKey{title: fn.Title, author: author}
		files[key] = append(files[key], MapFile{
			WorkshopID: fn.WorkshopID,
			Size:       info.Size(),
			Path:       path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	for key, list := range files {
		if len(list) < 2 {
			continue
		}
		slices.SortFunc(list, func(a, b MapFile) int {
			return compareIDs(b.WorkshopID, a.WorkshopID)
		})
		groups = append(groups, DuplicateGroup{
			Title:      key.title,
			Author:     key.author,
			Main:       list[0],
			Duplicates: list[1:],
		})
	}
	slices.SortFunc(groups, func(a, b DuplicateGroup) int {
		return cmp.Or(strings.Compare(a.Title, b.Title), strings.Compare(a.Author, b.Author))
	})
	return groups, nil
}

// ProcessDuplicates moves every duplicate into <mapsDir>/duplicates and
// rewrites the report there. Files already in the folder stay put.
// It returns the number of files moved.
func ProcessDuplicates(ctx context.Context, fs afero.Fs, mapsDir string, groups []DuplicateGroup) (int, error) {
	if len(groups) == 0 {
		return 0, nil
	}

	dupDir := filepath.Join(mapsDir, DuplicatesDir)
	if err := ioutils.EnsureDir(fs, dupDir); err != nil {
		return 0, err
	}

	moved := 0
	for gi := range groups {
		for di := range groups[gi].Duplicates {
			file := &groups[gi].Duplicates[di]
			if filepath.Dir(file.Path) == dupDir {
				continue
			}
			dst := filepath.Join(dupDir, filepath.Base(file.Path))
			if err := ioutils.MoveFile(ctx, fs, file.Path, dst); err != nil {
				return moved, fmt.Errorf("move duplicate %s: %w", file.WorkshopID, err)
			}
			file.Path = dst
			moved++
		}
	}

	report := FormatReport(groups)
	if err := ioutils.WriteFile(ctx, fs, filepath.Join(dupDir, ReportName), []byte(report)); err != nil {
		return moved, fmt.Errorf("write duplicates report: %w", err)
	}
	return moved, nil
}

// FormatReport renders groups as:
//
//	'Jungle Run' by someone
//	Main - ID 300 - Size (B) 1024
//	Dupl - ID 200 - Size (B) 1000
func FormatReport(groups []DuplicateGroup) string {
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "'%s' by %s\n", g.Title, g.Author)
		fmt.Fprintf(&b, "Main - ID %s - Size (B) %d\n", g.Main.WorkshopID, g.Main.Size)
		for _, d := range g.Duplicates {
			fmt.Fprintf(&b, "Dupl - ID %s - Size (B) %d\n", d.WorkshopID, d.Size)
		}
	}
	return b.String()
}

// compareIDs orders numeric workshop ids without parsing them.
func compareIDs(a, b string) int {
	return cmp.Or(cmp.Compare(len(a), len(b)), strings.Compare(a, b))
}
