package export

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	_ "image/jpeg" // 解码用户可能上传的jpeg参考风格图片


	"carouselgen/internal/model"
)

// MergeVertical 把所有分页图片从上到下拼成一张PNG，
// 画布宽为最大宽度、高为各图高度之和。没有图片时静默返回nil
func MergeVertical(segments []model.CarouselSegment) ([]byte, error) {
	var images []image.Image
	for i, seg := range segments {
		if seg.ImageURL == "" {
			continue
		}
		data, _, err := DecodeDataURI(seg.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode segment %d image: %w", i+1, err)
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, nil
	}

	maxWidth, totalHeight := 0, 0
	for _, img := range images {
		b := img.Bounds()
		if b.Dx() > maxWidth {
			maxWidth = b.Dx()
		}
		totalHeight += b.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, maxWidth, totalHeight))
	y := 0
	for _, img := range images {
		b := img.Bounds()
		dst := image.Rect(0, y, b.Dx(), y+b.Dy())
		draw.Draw(canvas, dst, img, b.Min, draw.Src)
		y += b.Dy()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode merged image: %w", err)
	}
	return buf.Bytes(), nil
}
