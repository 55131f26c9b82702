package validation

import (
	"net/url"
	"regexp"
	"strings"
)

// Viewer ids are device ids minted by the client: uuid-like tokens.
var viewerIDRe = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)

func IsValidViewerID(id string) bool {
	return viewerIDRe.MatchString(id)
}

// IsSafeLink accepts absolute http(s) URLs only, so a story CTA can never carry
// a javascript: or data: link.
func IsSafeLink(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}
