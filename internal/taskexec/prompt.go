package taskexec

import (
	"strings"
	"time"

	"github.com/soyeahso/taskweaver/internal/domain"
)

// Placeholders recognised in prompt templates.
const (
	PlaceholderInput     = "{input}"
	PlaceholderContext   = "{context}"
	PlaceholderTimestamp = "{timestamp}"
)

const (
	contextHeader    = "\n\nRelevant context:\n"
	noContentMessage = "No content available"

	// TimestampLayout is ISO-8601 in UTC with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

// BuildContext renders data sources as a context block. It returns "" when
// there are no sources.
func BuildContext(sources []domain.DataSource) string {
	if len(sources) == 0 {
		return ""
	}
	lines := make([]string, len(sources))
	for i, ds := range sources {
		content := ds.Content
		if content == "" {
			content = noContentMessage
		}
		lines[i] = "- " + ds.Name + ": " + content
	}
	return contextHeader + strings.Join(lines, "\n")
}

// BuildPrompt substitutes every occurrence of the known placeholders in
// template. Other brace sequences are left as they are.
func BuildPrompt(template, input, contextBlock string, now time.Time) string {
	r := strings.NewReplacer(
		PlaceholderInput, input,
		PlaceholderContext, contextBlock,
		PlaceholderTimestamp, FormatTimestamp(now),
	)
	return r.Replace(template)
}

// FormatTimestamp renders t the way prompts expect it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
