package utils

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

var (
	// ErrBinaryContent indicates data containing NUL bytes.
	ErrBinaryContent = errors.New("source file contains binary data")
	// ErrInvalidEncoding indicates data that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("source file is not valid UTF-8 text")
)

var utf8ByteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// IsBinary reports whether the provided byte slice appears to contain binary data.
func IsBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

// DecodeText converts an uploaded file into source text. A leading byte order mark is dropped;
// NUL bytes or invalid UTF-8 sequences are rejected.
func DecodeText(data []byte) (string, error) {
	if IsBinary(data) {
		return "", ErrBinaryContent
	}
	validated, _, validateErr := transform.Bytes(encoding.UTF8Validator, bytes.TrimPrefix(data, utf8ByteOrderMark))
	if validateErr != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncoding, validateErr)
	}
	return string(validated), nil
}
