// Package render formats assistant output for the terminal: markdown, the
// usage footer, and clipboard copy.
package render

import (
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s\x1b]+)`)
	ansiRegex       = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// codeBlockMarker prefixes code block lines in go-term-markdown output.
const codeBlockMarker = "┃"

// Markdown renders content for a terminal of the given width.
//
// Links are flattened to their URL before rendering and autolinking is off,
// so the terminal emulator handles URL detection.
func Markdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	content = mdLinkRegex.ReplaceAllString(content, "$2")

	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	r := markdown.NewRenderer(width-4, 0)
	rendered := gomarkdown.Render(p.Parse([]byte(content)), r)

	return postProcess(string(rendered))
}

func postProcess(s string) string {
	// Inline code: blue background italic becomes red text.
	s = inlineCodeRegex.ReplaceAllString(s, "\x1b[31m$1\x1b[0m")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.Contains(line, codeBlockMarker) {
			lines[i] = urlRegex.ReplaceAllString(line, "\x1b[31m$1\x1b[0m")
		}
	}
	return strings.Join(lines, "\n")
}

// StripANSI removes terminal color sequences.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
