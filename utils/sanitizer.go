package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy strips every tag, leaving plain text.
	StrictPolicy *bluemonday.Policy
	// EmailPolicy keeps the rich-text subset safe to store and render for
	// mail bodies, applied on ingest and on compose.
	EmailPolicy *bluemonday.Policy
)

func init() {
	StrictPolicy = bluemonday.StrictPolicy()

	EmailPolicy = bluemonday.UGCPolicy()

	EmailPolicy.AllowElements("p", "br", "div", "span", "h1", "h2", "h3", "h4", "h5", "h6")
	EmailPolicy.AllowElements("strong", "em", "u", "s", "code", "pre")
	EmailPolicy.AllowElements("ul", "ol", "li")
	EmailPolicy.AllowElements("blockquote")
	EmailPolicy.AllowElements("a", "img")
	EmailPolicy.AllowElements("table", "thead", "tbody", "tr", "th", "td")

	EmailPolicy.AllowAttrs("href").OnElements("a")
	EmailPolicy.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	EmailPolicy.AllowAttrs("class", "id").Globally()
	EmailPolicy.AllowAttrs("style").OnElements("span", "div", "p")

	EmailPolicy.RequireParseableURLs(true)
	EmailPolicy.AllowURLSchemes("http", "https", "mailto")
}

// SanitizeEmailHTML sanitizes a mail body with the email policy.
func SanitizeEmailHTML(html string) string {
	return EmailPolicy.Sanitize(html)
}

// StripHTML removes all HTML tags from content.
func StripHTML(html string) string {
	return StrictPolicy.Sanitize(html)
}

// NormalizeSubject strips reply/forward prefixes so a subject can be
// compared across a conversation.
func NormalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)

	prefixes := []string{"re:", "fwd:", "fw:", "aw:", "wg:"}
	for {
		trimmed := false
		lower := strings.ToLower(subject)
		for _, prefix := range prefixes {
			if strings.HasPrefix(lower, prefix) {
				subject = strings.TrimSpace(subject[len(prefix):])
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}

	return subject
}
