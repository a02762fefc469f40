package composer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var hrefPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)

// applyTrackers instruments an HTML body with a per-message token: every
// http(s) link is rewritten through the click endpoint and an open pixel is
// appended. The token ties opens and clicks back to the sent message.
func applyTrackers(html, baseURL string) (string, string) {
	token := uuid.New().String()
	base := strings.TrimRight(baseURL, "/")

	html = hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]
		return fmt.Sprintf(`href="%s/t/c/%s?u=%s"`, base, token, url.QueryEscape(target))
	})

	pixel := fmt.Sprintf(`<img src="%s/t/o/%s" width="1" height="1" alt="">`, base, token)
	return html + pixel, token
}
