package core

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
)

var plainTextExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".tsv": true,
	".json": true, ".yaml": true, ".yml": true, ".xml": true, ".html": true,
	".htm": true, ".log": true, ".ini": true, ".toml": true, ".py": true,
	".go": true, ".js": true, ".ts": true, ".java": true, ".c": true,
	".cpp": true, ".h": true, ".rs": true, ".sh": true, ".sql": true,
}

var officeMimeTypes = map[string]string{
	".docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":   "application/vnd.oasis.opendocument.text",
	".rtf":   "application/rtf",
	".pages": "application/vnd.apple.pages",
}

// Extract returns best-effort plain text for a file. It never fails: an
// unsupported extension or a broken document yields a bracketed placeholder.
func Extract(data []byte, ext string) (text string) {
	ext = normalizeExt(ext)

	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("[Error extracting %s file: %v]", ext, r)
		}
	}()

	var err error
	switch {
	case plainTextExtensions[ext]:
		return strings.ToValidUTF8(string(data), "\uFFFD")
	case ext == ".pdf":
		text, err = extractPDF(data)
	case officeMimeTypes[ext] != "":
		text, err = extractOffice(data, officeMimeTypes[ext])
	default:
		return fmt.Sprintf("[Unsupported file type: %s]", ext)
	}
	if err != nil {
		return fmt.Sprintf("[Error extracting %s file: %v]", ext, err)
	}
	return text
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// extractPDF joins page texts with newlines. Unreadable pages contribute "".
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		pages = append(pages, pageText(r.Page(i)))
	}
	return strings.Join(pages, "\n"), nil
}

func pageText(p pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if p.V.IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

func extractOffice(data []byte, mimeType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}
