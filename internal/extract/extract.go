// Package extract turns uploaded resume files into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

const (
	TypePDF  = "application/pdf"
	TypeText = "text/plain"
)

// ErrUnsupportedType is returned for any media type other than PDF or plain text.
var ErrUnsupportedType = errors.New("unsupported file type")

// Error reports a recognized file that could not be read.
type Error struct {
	MediaType string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.MediaType, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extract returns the text content of data according to its declared media type.
// Parameters of the media type such as charset are ignored.
func Extract(data []byte, mediaType string) (string, error) {
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}

	var text string
	switch parsed {
	case TypeText:
		text = string(bytes.ToValidUTF8(data, []byte("�")))
	case TypePDF:
		text, err = pdfText(data)
		if err != nil {
			return "", &Error{MediaType: parsed, Err: err}
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, parsed)
	}

	return norm.NFC.String(text), nil
}

// DetectType maps a file name to one of the supported media types by extension.
func DetectType(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return TypePDF, nil
	case ".txt":
		return TypeText, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Base(filename))
	}
}

// pdfText concatenates the plain text of every page. The reader panics on some
// malformed inputs, so panics are turned into errors.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", i, err)
		}
		sb.WriteString(pageText)
	}

	return sb.String(), nil
}

// ReadAll reads at most limit bytes from r and fails when more are available.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return data, nil
}
