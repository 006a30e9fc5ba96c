// Package chunker cuts parsed sections into the chunks fed to extraction.
package chunker

import (
	"strings"

	"github.com/brunobiangulo/gokg/parser"
	"github.com/brunobiangulo/gokg/store"
)

// DefaultMaxWords bounds the size of a chunk.
const DefaultMaxWords = 512

// Config controls the chunking behaviour.
type Config struct {
	MaxWords int // Maximum words per chunk.
}

// Chunker converts parsed document sections into store-ready chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = DefaultMaxWords
	}
	return &Chunker{cfg: cfg}
}

// Chunk turns the sections of one source file into chunks numbered from 0
// in document order, with ids <sourceFile>_section_<n>. Each chunk keeps
// the title and start page of its section. Sections longer than MaxWords
// are split at sentence boundaries, tables at row boundaries. A fragment
// repeating an earlier one of the same file is dropped.
func (c *Chunker) Chunk(sourceFile string, sections []parser.Section) []store.Chunk {
	var chunks []store.Chunk
	seen := make(map[string]bool)
	for _, sec := range sections {
		var page *int
		if sec.PageNumber > 0 {
			n := sec.PageNumber
			page = &n
		}
		for _, frag := range c.split(sec) {
			if seen[frag] {
				continue
			}
			seen[frag] = true
			chunks = append(chunks, store.Chunk{
				ChunkID:      store.ChunkID(sourceFile, len(chunks)),
				Text:         frag,
				SourceFile:   sourceFile,
				PageNumber:   page,
				SectionTitle: sec.Heading,
			})
		}
	}
	return chunks
}

func (c *Chunker) split(sec parser.Section) []string {
	text := strings.TrimSpace(sec.Content)
	if text == "" {
		return nil
	}
	if wordCount(text) <= c.cfg.MaxWords {
		return []string{text}
	}
	if sec.Type == parser.TypeTable {
		return pack(strings.Split(text, "\n"), "\n", c.cfg.MaxWords)
	}
	return pack(splitSentences(text), " ", c.cfg.MaxWords)
}

// pack joins consecutive units with sep while the result stays within
// maxWords. A unit longer than maxWords is emitted on its own.
func pack(units []string, sep string, maxWords int) []string {
	var out []string
	var cur strings.Builder
	words := 0
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		n := wordCount(u)
		if words+n > maxWords && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			words = 0
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(u)
		words += n
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// splitSentences is a simple sentence tokeniser. It splits on
// period/question-mark/exclamation followed by whitespace or end of
// string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
