package extractor

import (
	"sort"
	"strings"
)

// Format is the closed set of input formats the extractor dispatches on.
// Unrecognized extensions map to FormatUnknown, which is handled by the
// universal strategy rather than rejected outright.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatDocx
	FormatDoc
	FormatRTF
	FormatHTML
	FormatMarkdown
	FormatText
	FormatCSV
	FormatXLSX
	FormatImage
)

var formatNames = map[Format]string{
	FormatUnknown:  "unknown",
	FormatPDF:      "pdf",
	FormatDocx:     "docx",
	FormatDoc:      "doc",
	FormatRTF:      "rtf",
	FormatHTML:     "html",
	FormatMarkdown: "markdown",
	FormatText:     "text",
	FormatCSV:      "csv",
	FormatXLSX:     "xlsx",
	FormatImage:    "image",
}

func (f Format) String() string { return formatNames[f] }

// extFormats maps normalized extensions onto the format enum.
var extFormats = map[string]Format{
	"pdf":  FormatPDF,
	"docx": FormatDocx,
	"doc":  FormatDoc,
	"rtf":  FormatRTF,
	"html": FormatHTML,
	"htm":  FormatHTML,
	"md":   FormatMarkdown,
	"txt":  FormatText,
	"text": FormatText,
	"log":  FormatText,
	"vtt":  FormatText,
	"srt":  FormatText,
	"csv":  FormatCSV,
	"tsv":  FormatCSV,
	"xlsx": FormatXLSX,
	"xlsm": FormatXLSX,
	"xls":  FormatXLSX,
	"png":  FormatImage,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"tiff": FormatImage,
	"tif":  FormatImage,
	"bmp":  FormatImage,
	"webp": FormatImage,
}

// FormatForExtension normalizes an extension ("PDF", ".pdf", "pdf") and
// resolves it to a Format. Anything unmapped is FormatUnknown.
func FormatForExtension(ext string) Format {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if f, ok := extFormats[ext]; ok {
		return f
	}
	return FormatUnknown
}

// SupportedExtensions lists every extension with a dedicated strategy,
// sorted for stable error messages.
func SupportedExtensions() []string {
	out := make([]string, 0, len(extFormats))
	for ext := range extFormats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// mimeFor returns the mime type hint handed to docconv per format.
func mimeFor(f Format) string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatDoc:
		return "application/msword"
	case FormatRTF:
		return "application/rtf"
	case FormatHTML:
		return "text/html"
	case FormatMarkdown, FormatText:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
