// Package markdown holds the small set of GitHub-flavored markdown and HTML
// fragments shared by check-run reports and PR comments.
package markdown

import (
	"strconv"
	"strings"
)

// Row renders a table row. When header is set a divider row follows it.
func Row(cells []string, header bool) string {
	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
	if header && len(cells) > 0 {
		b.WriteString(strings.Repeat("| - ", len(cells)))
		b.WriteString("|\n")
	}
	return b.String()
}

// Details wraps body in a collapsible section.
func Details(summary, body string, open bool) string {
	tag := "<details>"
	if open {
		tag = "<details open>"
	}
	var b strings.Builder
	b.WriteString(tag)
	b.WriteString("\n<summary>")
	b.WriteString(summary)
	b.WriteString("</summary>\n\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("</details>\n")
	return b.String()
}

// Plural returns "<n> <word>" with an "s" appended when n != 1.
func Plural(n int, word string) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(n))
	b.WriteString(" ")
	b.WriteString(word)
	if n != 1 {
		b.WriteString("s")
	}
	return b.String()
}
