package parser

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// TextParser handles plain text formats. Files are decoded as UTF-8,
// falling back to Latin-1 when the bytes are not valid UTF-8.
type TextParser struct{}

var _ Parser = (*TextParser)(nil)

// NewTextParser creates a plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Name returns the parser identifier.
func (p *TextParser) Name() string { return "text" }

// Extensions returns the supported file extensions.
func (p *TextParser) Extensions() []string {
	return []string{".txt", ".md", ".csv", ".log"}
}

// Parse reads and decodes the file at path.
func (p *TextParser) Parse(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		code := qerrors.ErrCodeFileRead
		if os.IsNotExist(err) {
			code = qerrors.ErrCodeFileNotFound
		}
		return &Result{
			Err: qerrors.New(code, fmt.Sprintf("read %s: %v", path, err), err),
		}, nil
	}

	content, encoding := decode(data)

	return &Result{
		Success: true,
		Content: content,
		Metadata: map[string]string{
			"encoding":   encoding,
			"line_count": strconv.Itoa(countLines(content)),
			"char_count": strconv.Itoa(utf8.RuneCountInString(content)),
		},
	}, nil
}

// decode interprets raw bytes as UTF-8, falling back to Latin-1.
func decode(data []byte) (string, string) {
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}

	// Latin-1: every byte maps to the code point of the same value.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), "latin-1"
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
