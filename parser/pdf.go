package parser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

// Parse extracts the text of every page and groups it into sections. When
// one of the first pages holds a table of contents, its entries decide the
// section titles; otherwise numbered and all-caps lines do.
func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]string, total+1)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("parser: skipping unreadable page", "path", path, "page", i, "error", err)
			continue
		}
		pages[i] = text
	}

	res := parsePages(pages)
	if len(res.Sections) == 0 {
		return nil, fmt.Errorf("no text extracted from %s", path)
	}
	return res, nil
}

// parsePages builds sections from page texts indexed from 1.
func parsePages(pages []string) *ParseResult {
	res := &ParseResult{}
	tocPage := 0
	for i := 1; i < len(pages) && i <= tocPages; i++ {
		if !tocMarker.MatchString(pages[i]) {
			continue
		}
		if toc := ParseTOC(pages[i]); len(toc) > 0 {
			res.TOC, tocPage = toc, i
			break
		}
	}

	var cur *Section
	flush := func() {
		if cur != nil {
			cur.Content = strings.TrimSpace(cur.Content)
			if cur.Content != "" {
				res.Sections = append(res.Sections, *cur)
			}
		}
		cur = nil
	}
	start := func(title, number string, page int) {
		if cur != nil && cur.Heading == title && title != "" {
			return
		}
		flush()
		cur = &Section{
			Heading:    title,
			Number:     number,
			Level:      headingLevel(number),
			PageNumber: page,
			Type:       TypeSection,
		}
	}

	for n := 1; n < len(pages); n++ {
		if n == tocPage || strings.TrimSpace(pages[n]) == "" {
			continue
		}
		if e, ok := SectionAt(n, res.TOC); ok {
			start(e.Title, e.Number, n)
		}
		for _, line := range strings.Split(pages[n], "\n") {
			line = cleanLine(line)
			if line == "" || isNoise(line) {
				continue
			}
			if len(res.TOC) > 0 {
				if e, ok := MatchTOC(line, res.TOC); ok && headingShaped(line) {
					start(e.Title, e.Number, n)
					continue
				}
			} else if isLikelyHeading(line) {
				number := strings.TrimRight(leadingNumber.FindString(line), ". ")
				start(strings.TrimSpace(leadingNumber.ReplaceAllString(line, "")), number, n)
				continue
			}
			if cur == nil {
				start("", "", n)
			}
			if cur.Content != "" {
				cur.Content += " "
			}
			cur.Content += line
		}
	}
	flush()
	return res
}

var (
	versionPrefix = regexp.MustCompile(`^Vers\.\s*\d+\.\d+\s*`)
	pageMention   = regexp.MustCompile(`Pag\.\s*\d+\s*`)
	numberedTitle = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s+\p{Lu}`)

	noisePatterns = []*regexp.Regexp{
		// running headers and footers
		regexp.MustCompile(`(?i)QUESTO DOCUMENTO È DI PROPRIETÀ`),
		regexp.MustCompile(`(?i)Manuale per.*?\d{2}/\d{2}/\d{4}`),
		regexp.MustCompile(`(?i)copyright|©|proprietà|innovapuglia`),
		regexp.MustCompile(`^\d+$`),
		// captions
		regexp.MustCompile(`(?i)^F\s*IGURA\s+\d+`),
		regexp.MustCompile(`(?i)^Fig\.\s+\d+`),
		regexp.MustCompile(`(?i)FIGURA\s+\d+\s*[-–]`),
		regexp.MustCompile(`(?i)^TABELLA\s+\d+`),
		regexp.MustCompile(`(?i)^TAB\.\s+\d+`),
		regexp.MustCompile(`(?i)Tabella riepilogativa`),
		// table of contents lines
		regexp.MustCompile(`\.{5,}\s*\d+$`),
		regexp.MustCompile(`INDICE DELLE (FIGURE|TABELLE)`),
	}
)

// cleanLine trims a line and drops version stamps and page mentions.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = versionPrefix.ReplaceAllString(line, "")
	line = pageMention.ReplaceAllString(line, "")
	return strings.TrimSpace(spaces.ReplaceAllString(line, " "))
}

func isNoise(line string) bool {
	if len(line) < 5 {
		return true
	}
	for _, re := range noisePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// headingShaped reports whether a line could be a heading at all, so that
// body sentences sharing words with a title are not taken for one.
func headingShaped(line string) bool {
	if len(line) >= 100 {
		return false
	}
	return numberedTitle.MatchString(line) || isUpper(line)
}

func isLikelyHeading(line string) bool {
	if len(line) >= 100 {
		return false
	}
	if numberedTitle.MatchString(line) {
		return true
	}
	return isUpper(line) && len(strings.Fields(line)) > 1
}

func isUpper(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 0
}

func headingLevel(number string) int {
	if number == "" {
		return 1
	}
	return strings.Count(number, ".") + 1
}
