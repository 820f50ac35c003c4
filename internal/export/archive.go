package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"

	"carouselgen/internal/model"
)

// ErrNoImages 没有任何分页带图片
var ErrNoImages = errors.New("export: no segment has an image")

// Archive 把每页图片按页码打包成zip，条目名slide_01.png…
func Archive(segments []model.CarouselSegment) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	count := 0
	for i, seg := range segments {
		if seg.ImageURL == "" {
			continue
		}
		data, mime, err := DecodeDataURI(seg.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
		f, err := w.Create(fmt.Sprintf("slide_%02d.%s", i+1, extFor(mime)))
		if err != nil {
			return nil, fmt.Errorf("create zip entry: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			return nil, fmt.Errorf("write zip entry: %w", err)
		}
		count++
	}
	if count == 0 {
		return nil, ErrNoImages
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}
