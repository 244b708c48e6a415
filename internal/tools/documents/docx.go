package documents

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"
)

// maxDocumentXML bounds the decompressed size of word/document.xml.
const maxDocumentXML = 64 << 20

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

var errNoDocumentXML = errors.New("word/document.xml not found")

// extractDOCX returns the raw text of a DOCX body: paragraphs end with a
// newline, tabs and breaks are kept.
func extractDOCX(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zr, err := zip.NewReader(f, size)
	if err != nil {
		return "", err
	}

	for _, zf := range zr.File {
		if zf.Name != "word/document.xml" {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return documentText(io.LimitReader(rc, maxDocumentXML))
	}
	return "", errNoDocumentXML
}

func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Space != wordNamespace {
				continue
			}
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			if el.Name.Space != wordNamespace {
				continue
			}
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(el)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
