// Package parser extracts ordered, titled sections from the guide files fed
// to the prepare step.
package parser

import "context"

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section // Ordered sections extracted from the document
	// TOC holds the entries read from the table of contents, if any.
	TOC []TOCEntry
}

// Section represents a logical section of a parsed document.
type Section struct {
	Heading    string
	Number     string // "3.2" when the heading is numbered
	Content    string
	Level      int // Heading level (1=top, 2=sub, etc.)
	PageNumber int // 0 when the format has no pages
	Type       string
}

// Section types.
const (
	TypeSection = "section"
	TypeTable   = "table"
)

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
