package ingestion

import (
	"html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// Cleaner normalises free text from exports and datasets. Helpdesk exports
// often carry HTML answers; those are sanitised and converted to markdown so
// the embedded text and the generation context stay readable.
type Cleaner struct {
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
	md     *converter.Converter
}

// NewCleaner constructs a Cleaner. It is safe for concurrent use.
func NewCleaner() *Cleaner {
	return &Cleaner{
		ugc:    bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Clean returns s with markup converted or stripped and whitespace runs
// collapsed. Plain text only has its whitespace normalised.
func (c *Cleaner) Clean(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsRune(s, '<') {
		return collapseSpaces(s)
	}

	safe := c.ugc.Sanitize(s)
	md, err := c.md.ConvertString(safe)
	if err == nil && strings.TrimSpace(md) != "" {
		return collapseSpaces(md)
	}
	return collapseSpaces(html.UnescapeString(c.strict.Sanitize(s)))
}

// collapseSpaces squeezes runs of spaces and tabs and trims each line, but
// keeps line breaks so lists and paragraphs survive.
func collapseSpaces(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
