package render

import (
	"fmt"
	"polychat/stream"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	dimColor     = lipgloss.Color("7")
	accentColor  = lipgloss.Color("12")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	dangerColor  = lipgloss.Color("9")

	// UserStyle labels the prompt echo.
	UserStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)
)

// FooterInfo is what the usage footer reports after a reply.
type FooterInfo struct {
	Provider string
	Model    string
	// Usage is nil when the provider reported none.
	Usage *stream.Usage
	// Context is the local estimate of the prepared context.
	Context int
	Budget  int
	// Evicted counts messages removed while preparing the context.
	Evicted  int
	Overflow bool
}

// FormatPairs formats label/value pairs, with values in the accent color.
// Usage: FormatPairs("model", "gpt-4o", "tokens", "120")
func FormatPairs(parts ...string) string {
	valueStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i+1 < len(parts); i += 2 {
		result = append(result, DimStyle.Render(parts[i])+" "+valueStyle.Render(parts[i+1]))
	}
	return strings.Join(result, "  ")
}

// Footer renders the one-line usage summary printed after a reply.
func Footer(info FooterInfo) string {
	parts := []string{"model", info.Provider + "/" + info.Model}
	if info.Usage != nil {
		parts = append(parts,
			"in", fmt.Sprint(info.Usage.PromptTokens),
			"out", fmt.Sprint(info.Usage.CompletionTokens),
		)
		if info.Usage.CachedTokens > 0 {
			parts = append(parts, "cached", fmt.Sprint(info.Usage.CachedTokens))
		}
	}
	parts = append(parts, "context", fmt.Sprintf("%d/%d", info.Context, info.Budget))
	if info.Evicted > 0 {
		parts = append(parts, "evicted", fmt.Sprint(info.Evicted))
	}

	footer := FormatPairs(parts...)
	if info.Overflow {
		footer += "  " + WarningStyle.Render("context over budget")
	}
	return footer
}
