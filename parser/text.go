package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// TextParser handles plain text (.txt) and Markdown (.md) files. Markdown
// is split on its # headings; plain text on numbered and all-caps lines.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md"} }

var markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return &ParseResult{}, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".md") {
		return &ParseResult{Sections: markdownSections(content)}, nil
	}
	res := parsePages([]string{"", content})
	for i := range res.Sections {
		res.Sections[i].PageNumber = 0
	}
	return res, nil
}

func markdownSections(content string) []Section {
	var out []Section
	cur := Section{Type: TypeSection, Level: 1}
	var body []string
	flush := func() {
		cur.Content = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.Content != "" {
			out = append(out, cur)
		}
		body = body[:0]
	}
	for _, line := range strings.Split(content, "\n") {
		if m := markdownHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			title := m[2]
			number := strings.TrimRight(leadingNumber.FindString(title), ". ")
			cur = Section{
				Heading: strings.TrimSpace(leadingNumber.ReplaceAllString(title, "")),
				Number:  number,
				Level:   len(m[1]),
				Type:    TypeSection,
			}
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}
