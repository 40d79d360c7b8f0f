package htmlparse

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// decode converts body to UTF-8. An explicit charset in contentType wins;
// otherwise the encoding is sniffed from BOM and <meta> declarations.
func decode(body []byte, contentType string) (io.Reader, error) {
	var enc encoding.Encoding

	if label := charsetParam(contentType); label != "" {
		e, err := htmlindex.Get(label)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedCharset, label)
		}
		enc = e
	} else {
		enc, _, _ = charset.DetermineEncoding(body, "text/html")
	}

	if name, _ := htmlindex.Name(enc); name == "utf-8" || enc == encoding.Nop {
		return bytes.NewReader(body), nil
	}
	return transform.NewReader(bytes.NewReader(body), enc.NewDecoder()), nil
}

func charsetParam(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}
