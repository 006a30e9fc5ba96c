package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// TOCEntry is one line of a guide's table of contents.
type TOCEntry struct {
	Number string // "3.2", empty for unnumbered entries
	Title  string
	Page   int // 0 when the entry carries no page
}

// tocPages is how many leading pages are searched for the table of contents.
const tocPages = 5

var (
	tocMarker = regexp.MustCompile(`(?i)\b(sommario|indice)\b`)

	// "3.2 GESTIONE UTENTI ........ 12"
	tocNumberedPage = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(\p{Lu}[\p{Lu}\s'’]{2,60}?)\s*\.{3,}\s*(\d+)\s*$`)
	// "INTRODUZIONE ........ 3"
	tocTitlePage = regexp.MustCompile(`^(\p{Lu}[\p{Lu}\s'’]{2,60}?)\s*\.{3,}\s*(\d+)\s*$`)
	// "3. INTRODUZIONE"
	tocNumbered = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(\p{Lu}[\p{Lu}\s'’]{2,60})$`)

	leadingNumber = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s*`)
	captionPrefix = regexp.MustCompile(`^(FIGURA|TABELLA|STEP|F\s+IGURA)\s*\d+\s*[-–]?\s*`)
	spaces        = regexp.MustCompile(`\s+`)
)

var tocStopWords = map[string]bool{
	"PER": true, "LA": true, "IL": true, "DI": true, "DEL": true,
	"DELLA": true, "E": true, "ED": true, "AL": true, "ALLA": true,
}

// ParseTOC reads table of contents entries from the text of a page that
// contains one. Lines that cannot be entries are ignored.
func ParseTOC(text string) []TOCEntry {
	var out []TOCEntry
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 5 || skipTOCLine(line) {
			continue
		}
		e, ok := tocEntry(line)
		if !ok {
			continue
		}
		key := e.Number
		if key == "" {
			key = e.Title
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

func skipTOCLine(line string) bool {
	lower := strings.ToLower(line)
	for _, s := range []string{"sommario", "indice", "figura", "tabella", "pag."} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func tocEntry(line string) (TOCEntry, bool) {
	if m := tocNumberedPage.FindStringSubmatch(line); m != nil {
		page, err := strconv.Atoi(m[3])
		if err != nil {
			return TOCEntry{}, false
		}
		return TOCEntry{Number: m[1], Title: cleanTitle(m[2]), Page: page}, true
	}
	if m := tocTitlePage.FindStringSubmatch(line); m != nil {
		page, err := strconv.Atoi(m[2])
		if err != nil {
			return TOCEntry{}, false
		}
		return TOCEntry{Title: cleanTitle(m[1]), Page: page}, true
	}
	if m := tocNumbered.FindStringSubmatch(line); m != nil {
		return TOCEntry{Number: m[1], Title: cleanTitle(m[2])}, true
	}
	return TOCEntry{}, false
}

func cleanTitle(s string) string {
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.TrimRight(s, ".")
}

// MatchTOC finds the entry a heading line refers to. Numbering and caption
// prefixes are ignored; titles match exactly or by shared keywords.
func MatchTOC(line string, toc []TOCEntry) (TOCEntry, bool) {
	text := leadingNumber.ReplaceAllString(strings.TrimSpace(line), "")
	text = strings.ToUpper(spaces.ReplaceAllString(strings.TrimSpace(text), " "))
	text = captionPrefix.ReplaceAllString(text, "")
	if text == "" {
		return TOCEntry{}, false
	}
	for _, e := range toc {
		title := strings.ToUpper(e.Title)
		if text == title {
			return e, true
		}
		if len(text) <= 5 || len(title) <= 5 {
			continue
		}
		want := keywords(title)
		if len(want) == 0 {
			continue
		}
		have := keywords(text)
		shared := 0
		for w := range want {
			if have[w] {
				shared++
			}
		}
		if float64(shared) >= math.Min(2, float64(len(want))*0.6) {
			return e, true
		}
	}
	return TOCEntry{}, false
}

func keywords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if !tocStopWords[w] {
			out[w] = true
		}
	}
	return out
}

// SectionAt returns the entry whose start page is the last one at or
// before page.
func SectionAt(page int, toc []TOCEntry) (TOCEntry, bool) {
	var best TOCEntry
	found := false
	for _, e := range toc {
		if e.Page > 0 && e.Page <= page && (!found || e.Page > best.Page) {
			best, found = e, true
		}
	}
	return best, found
}
