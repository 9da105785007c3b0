package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MinTextLength is the fewest non-space characters a readable document has.
const MinTextLength = 10

var (
	ErrEmptyDocument   = errors.New("document has no readable text")
	ErrUnsupportedType = errors.New("unsupported document type")
)

// File is an uploaded document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type format int

const (
	formatUnknown format = iota
	formatText
	formatPDF
)

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
	".text": true,
}

// Extractor turns uploaded files into plain text.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract returns the text content of f. PDF pages are joined with newlines
// and the text runs inside a page with single spaces.
func (e *Extractor) Extract(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		content string
		err     error
	)
	switch detect(f) {
	case formatPDF:
		content, err = readPDF(f.Data)
		if err != nil {
			return "", fmt.Errorf("read pdf %q: %w", f.Name, err)
		}
	case formatText:
		content = strings.ToValidUTF8(string(f.Data), "")
	default:
		return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedType, f.Name, f.ContentType)
	}

	if visibleLength(content) < MinTextLength {
		return "", fmt.Errorf("%w: %q", ErrEmptyDocument, f.Name)
	}
	return content, nil
}

// ReadFile loads a document from disk.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is given by the CLI user
	if err != nil {
		return File{}, err
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Data:        data,
	}, nil
}

func detect(f File) format {
	if mediaType, _, err := mime.ParseMediaType(f.ContentType); err == nil {
		switch {
		case mediaType == "application/pdf":
			return formatPDF
		case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
			return formatText
		}
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	switch {
	case ext == ".pdf":
		return formatPDF
	case textExtensions[ext]:
		return formatText
	}

	// Browsers often send application/octet-stream; sniff the bytes.
	switch {
	case bytes.HasPrefix(f.Data, []byte("%PDF-")):
		return formatPDF
	case ext == "" && utf8.Valid(f.Data):
		return formatText
	}
	return formatUnknown
}

func readPDF(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, joinRuns(rows))
	}
	return strings.Join(pages, "\n"), nil
}

// joinRuns joins a page's text runs with single spaces, row by row.
func joinRuns(rows pdf.Rows) string {
	var runs []string
	for _, row := range rows {
		for _, t := range row.Content {
			runs = append(runs, strings.Fields(t.S)...)
		}
	}
	return strings.Join(runs, " ")
}

func visibleLength(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
