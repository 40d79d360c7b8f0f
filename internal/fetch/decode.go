package fetch

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// readBody decodes the response body according to Content-Encoding and
// reads at most limit decoded bytes. truncated is set when the body had more.
func readBody(body io.Reader, contentEncoding string, limit int64) (data []byte, truncated bool, err error) {
	var reader io.Reader

	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, false, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(body)
	case "deflate":
		fl := flate.NewReader(body)
		defer fl.Close()
		reader = fl
	default:
		reader = body
	}

	if limit <= 0 {
		data, err = io.ReadAll(reader)
		return data, false, err
	}
	data, err = io.ReadAll(io.LimitReader(reader, limit+1))
	if int64(len(data)) > limit {
		return data[:limit], true, err
	}
	return data, false, err
}
