package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	require.NoError(t, WriteFile(ctx, fs, "/maps/.staging/1.part", []byte("payload")))

	require.NoError(t, MoveFile(ctx, fs, "/maps/.staging/1.part", "/maps/4/114-1-Map.bfg"))

	data, err := afero.ReadFile(fs, "/maps/4/114-1-Map.bfg")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	exists, err := afero.Exists(fs, "/maps/.staging/1.part")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMoveFile_FallsBackToCopy(t *testing.T) {
	base := afero.NewMemMapFs()
	ctx := context.Background()
	require.NoError(t, WriteFile(ctx, base, "/src/a.bfg", []byte("abc")))

	fs := noRenameFs{base}
	require.NoError(t, MoveFile(ctx, fs, "/src/a.bfg", "/dst/a.bfg"))

	data, err := afero.ReadFile(base, "/dst/a.bfg")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	exists, _ := afero.Exists(base, "/src/a.bfg")
	assert.False(t, exists)
}

func TestFileSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a", []byte("12345"), 0o644))

	size, ok, err := FileSize(fs, "/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 5, size)

	_, ok, err = FileSize(fs, "/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestImageService_ResizeImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		src.Set(x, x%200, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	svc := NewImageService()
	out, err := svc.ResizeImage(context.Background(), buf.Bytes(), 100, 100)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestImageService_ConvertToJPEG_RejectsGarbage(t *testing.T) {
	_, err := NewImageService().ConvertToJPEG(context.Background(), []byte("not an image"))
	assert.Error(t, err)
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{800, 600, 1000, 1000, 800, 600},
		{1500, 1000, 1000, 1000, 1000, 666},
		{1000, 1500, 1000, 1000, 666, 1000},
		{5000, 1, 100, 100, 100, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.maxW, tt.maxH)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}

// noRenameFs forces MoveFile onto its copy path.
type noRenameFs struct{ afero.Fs }

func (noRenameFs) Rename(string, string) error { return afero.ErrFileNotFound }

func TestImageService_FitsWithin(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 20))))
	svc := NewImageService()

	fits, err := svc.FitsWithin(buf.Bytes(), 40, 40)
	require.NoError(t, err)
	assert.True(t, fits)

	fits, err = svc.FitsWithin(buf.Bytes(), 30, 30)
	require.NoError(t, err)
	assert.False(t, fits)

	_, err = svc.FitsWithin([]byte("not an image"), 10, 10)
	assert.Error(t, err)
}
