// Package export renders the organization report as HTML or PDF.
package export

import "errors"

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat maps a query value to a Format; empty means PDF.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case "", FormatPDF:
		return FormatPDF, true
	case FormatHTML:
		return FormatHTML, true
	default:
		return "", false
	}
}

type Request struct {
	PartnerID int64
	Format    Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates no headless Chrome binary is available.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
