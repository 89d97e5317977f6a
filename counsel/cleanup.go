package counsel

import (
	"regexp"
	"strings"
	"unicode"
)

// assistant file-search citations look like 【4:0†source】
var citationPattern = regexp.MustCompile(`【[^】]*】`)

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// Clean applies the stream rules to a complete text
func Clean(text string) string {
	text = citationPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimLeftFunc(text, unicode.IsSpace)
}

// Cleaner applies the same rules as Clean to a text that arrives in chunks.
// Markers and line endings split across chunk boundaries are held back
// until the next chunk completes them.
type Cleaner struct {
	pending  string
	started  bool
	newlines int
}

func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Chunk returns the cleaned part of chunk that is safe to emit
func (c *Cleaner) Chunk(chunk string) string {
	text := c.pending + chunk
	c.pending = ""

	if i := strings.LastIndex(text, "【"); i >= 0 && !strings.Contains(text[i:], "】") {
		c.pending = text[i:]
		text = text[:i]
	}
	if strings.HasSuffix(text, "\r") {
		c.pending = "\r" + c.pending
		text = text[:len(text)-1]
	}

	return c.emit(text)
}

// Flush returns whatever was held back, an unterminated marker is emitted
// as text
func (c *Cleaner) Flush() string {
	text := c.pending
	c.pending = ""
	return c.emit(text)
}

func (c *Cleaner) emit(text string) string {
	if text == "" {
		return ""
	}

	text = citationPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if !c.started {
		text = strings.TrimLeftFunc(text, unicode.IsSpace)
		if text == "" {
			return ""
		}
		c.started = true
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' {
			c.newlines++
			if c.newlines > 2 {
				continue
			}
		} else {
			c.newlines = 0
		}
		b.WriteRune(r)
	}
	return b.String()
}
