// Package export renders sheets to standalone HTML and PDF.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Document is the sheet content handed to the renderer.
type Document struct {
	ID        int64
	Title     string
	Author    string
	Group     string
	UpdatedAt time.Time
	Sources   []Source
}

// Source is one entry of a sheet. Comment and OutsideText hold Markdown.
type Source struct {
	Ref         string `json:"ref"`
	Heading     string `json:"heading"`
	Comment     string `json:"comment"`
	OutsideText string `json:"outsideText"`
	Media       string `json:"media"`
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates no Chrome binary is available.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
