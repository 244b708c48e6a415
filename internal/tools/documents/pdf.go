package documents

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the plain text and page count of a PDF. The parser
// panics on some malformed inputs, so panics are turned into errors.
func extractPDF(path string, size int64) (text string, pages int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(f, size)
	if err != nil {
		return "", 0, err
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", 0, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", 0, err
	}
	return buf.String(), r.NumPage(), nil
}
