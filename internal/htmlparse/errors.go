package htmlparse

import "errors"

var (
	// ErrInvalidBaseURL is returned when the page URL cannot be parsed.
	ErrInvalidBaseURL = errors.New("invalid base URL")

	// ErrUnsupportedCharset is returned when the declared charset is unknown.
	ErrUnsupportedCharset = errors.New("unsupported charset")
)
