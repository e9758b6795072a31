// Package ioutils provides file system utilities for the broforce-map-downloader.
//
// Every function works on an afero.Fs so the same code runs against the
// real disk (afero.NewOsFs) and in-memory filesystems in tests.
package ioutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// EnsureDir creates a directory and all parent directories if they don't exist.
func EnsureDir(fs afero.Fs, path string) error {
	return fs.MkdirAll(path, 0o755)
}

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(ctx context.Context, fs afero.Fs, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := EnsureDir(fs, filepath.Dir(path)); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// CopyFile copies src to dst. dst is created or truncated.
func CopyFile(ctx context.Context, fs afero.Fs, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sourceFile, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := fs.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return err
	}
	return destFile.Close()
}

// MoveFile moves src to dst, creating dst's directory.
//
// A plain rename is tried first. When that fails (for example across
// devices) the file is copied and the source removed.
func MoveFile(ctx context.Context, fs afero.Fs, src, dst string) error {
	if err := EnsureDir(fs, filepath.Dir(dst)); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	if err := fs.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(ctx, fs, src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return fs.Remove(src)
}

// FileSize returns the size of path, or 0 and false if it does not exist.
func FileSize(fs afero.Fs, path string) (int64, bool, error) {
	info, err := fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return info.Size(), true, nil
}
