package export

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrNotDataURI 不是data URI或结构不完整
var ErrNotDataURI = errors.New("export: not a base64 data URI")

// DecodeDataURI 解析 data:<mime>;base64,<payload> 形式的图片引用
func DecodeDataURI(uri string) (data []byte, mime string, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", ErrNotDataURI
	}
	rest := strings.TrimPrefix(uri, "data:")
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return nil, "", ErrNotDataURI
	}
	mime = rest[:sep]
	data, err = base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return nil, "", ErrNotDataURI
	}
	return data, mime, nil
}

// extFor 根据MIME类型选文件扩展名
func extFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
