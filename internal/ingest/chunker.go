// Package ingest splits protocol documents into retrievable passages.
package ingest

import (
	"strings"
	"unicode"
)

// Document is one protocol document submitted for indexing.
type Document struct {
	ProtocolNumber string `json:"protocol_number"`
	ProtocolTitle  string `json:"protocol_title"`
	Body           string `json:"body"`
}

// Chunk is one passage produced from a document.
type Chunk struct {
	ProtocolNumber string
	ProtocolTitle  string
	Section        string
	Content        string
}

// Options controls chunking behavior.
type Options struct {
	MaxChunkSize int // max characters per chunk (default 1500)
	MinChars     int // chunks below this are merged forward (default 40)
}

// Chunker splits protocol text into section-aware passages.
type Chunker struct {
	opts Options
}

// NewChunker creates a chunker.
func NewChunker(opts Options) *Chunker {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = 1500
	}
	if opts.MinChars <= 0 {
		opts.MinChars = 40
	}
	return &Chunker{opts: opts}
}

// ChunkDocument splits a document body into passages. Paragraphs are
// grouped under the most recent section heading until MaxChunkSize;
// undersized trailing fragments merge into the previous chunk.
func (c *Chunker) ChunkDocument(doc Document) []Chunk {
	paragraphs := splitParagraphs(doc.Body)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	section := ""
	var current strings.Builder

	flush := func() {
		content := strings.TrimSpace(current.String())
		current.Reset()
		if content == "" {
			return
		}
		if len(content) < c.opts.MinChars && len(chunks) > 0 {
			chunks[len(chunks)-1].Content += "\n\n" + content
			return
		}
		chunks = append(chunks, Chunk{
			ProtocolNumber: doc.ProtocolNumber,
			ProtocolTitle:  doc.ProtocolTitle,
			Section:        section,
			Content:        content,
		})
	}

	for _, para := range paragraphs {
		if isHeading(para) {
			flush()
			section = strings.TrimSuffix(strings.TrimSpace(para), ":")
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > c.opts.MaxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// ChunkDocuments chunks several documents. A document that yields no
// chunks is skipped, not an error.
func (c *Chunker) ChunkDocuments(docs []Document) []Chunk {
	var all []Chunk
	for _, doc := range docs {
		all = append(all, c.ChunkDocument(doc)...)
	}
	return all
}

// splitParagraphs splits text on blank lines.
func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	paragraphs := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// isHeading detects section headings: a short single line that either
// ends with a colon or is written in capitals (e.g. "ADULT DOSING:").
func isHeading(para string) bool {
	if strings.Contains(para, "\n") || len(para) > 80 {
		return false
	}
	trimmed := strings.TrimSpace(para)
	if strings.HasSuffix(trimmed, ":") {
		return true
	}
	hasLetter := false
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}
