// Package ioutils provides file system and image processing utilities.
//
// This package contains functions for:
//   - Writing, copying and moving files on an afero.Fs
//   - Directory creation
//   - Preview image resizing and JPEG conversion
//
// # File Operations
//
//	fs := afero.NewOsFs()
//	err := ioutils.MoveFile(ctx, fs, "maps/.staging/42.part", "maps/4/114-42-Title.bfg")
//	err := ioutils.WriteFile(ctx, fs, "maps/duplicates/@duplicates.txt", report)
//
// # Image Processing
//
//	svc := ioutils.NewImageService()
//	jpeg, _ := svc.ResizeImage(ctx, previewData, 512, 512)
package ioutils
