package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carouselgen/internal/model"
)

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeDataURI(t *testing.T) {
	uri := pngDataURI(t, 1, 1)
	data, mime, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.NotEmpty(t, data)

	_, _, err = DecodeDataURI("https://example.com/a.png")
	assert.ErrorIs(t, err, ErrNotDataURI)
	_, _, err = DecodeDataURI("data:image/png,notbase64")
	assert.ErrorIs(t, err, ErrNotDataURI)
	_, _, err = DecodeDataURI("data:image/png;base64,%%%")
	assert.ErrorIs(t, err, ErrNotDataURI)
}

func TestArchive(t *testing.T) {
	segments := []model.CarouselSegment{
		{ID: 1, ImageURL: pngDataURI(t, 2, 2)},
		{ID: 2}, // 中途失败的运行里这一页没有图片
		{ID: 3, ImageURL: pngDataURI(t, 2, 2)},
	}

	data, err := Archive(segments)
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, r.File, 2)
	assert.Equal(t, "slide_01.png", r.File[0].Name)
	assert.Equal(t, "slide_03.png", r.File[1].Name)
}

func TestArchiveNoImages(t *testing.T) {
	_, err := Archive([]model.CarouselSegment{{ID: 1}, {ID: 2}})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestMergeVertical(t *testing.T) {
	segments := []model.CarouselSegment{
		{ID: 1, ImageURL: pngDataURI(t, 4, 3)},
		{ID: 2, ImageURL: pngDataURI(t, 2, 5)},
	}

	data, err := MergeVertical(segments)
	require.NoError(t, err)
	require.NotNil(t, data)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	// 宽取最大值，高取总和
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
}

// 没有任何图片时静默返回nil
func TestMergeVerticalNoImages(t *testing.T) {
	data, err := MergeVertical([]model.CarouselSegment{{ID: 1}})
	require.NoError(t, err)
	assert.Nil(t, data)
}
