// Package gateway holds what the messaging provider adapters share:
// outbound formatting, splitting and provider error reporting.
package gateway

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"
)

// StatusError is a non-2xx answer from a messaging provider.
type StatusError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s response status %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var (
	boldPattern     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	headingPattern  = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t]*$`)
	citationPattern = regexp.MustCompile(`【[^】]*】`)
)

// FormatForWhatsApp rewrites common Markdown into WhatsApp markup.
func FormatForWhatsApp(text string) string {
	text = citationPattern.ReplaceAllString(text, "")
	text = headingPattern.ReplaceAllString(text, "*$1*")
	text = boldPattern.ReplaceAllString(text, "*$1*")
	return strings.TrimSpace(text)
}

// SplitMessage cuts text into parts of at most limit runes, preferring
// paragraph breaks, then line breaks, then spaces. Only whitespace at the cut
// points is lost.
func SplitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	parts := splitOn(text, limit, []string{"\n\n", "\n", " "})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitOn(text string, limit int, seps []string) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardCut(text, limit)
	}

	sep := seps[0]
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, piece := range strings.Split(text, sep) {
		n := utf8.RuneCountInString(piece)
		if n > limit {
			flush()
			out = append(out, splitOn(piece, limit, seps[1:])...)
			continue
		}
		if n == 0 {
			continue
		}
		if curLen > 0 && curLen+utf8.RuneCountInString(sep)+n > limit {
			flush()
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += utf8.RuneCountInString(sep)
		}
		cur.WriteString(piece)
		curLen += n
	}
	flush()
	return out
}

func hardCut(text string, limit int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/limit+1)
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
