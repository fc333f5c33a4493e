package importer

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/xxxsen/feedhub/internal/model"
)

var (
	embeddedURLRegex = regexp.MustCompile(`(?i)https?://[^\s<>"'\[\]{}|]+`)
	attachmentSplit  = regexp.MustCompile(`[\s,;|]+`)
)

const urlTrailingPunct = "),.;"

type attachmentResult struct {
	items     []model.Attachment
	invalid   int
	truncated bool
}

// extractAttachments pulls http(s) URLs out of free text, keeping first-seen order.
// Embedded URLs are preferred; text without any is split on common delimiters.
func extractAttachments(raw string, max int) attachmentResult {
	var res attachmentResult
	candidates := embeddedURLRegex.FindAllString(raw, -1)
	if len(candidates) == 0 {
		candidates = attachmentSplit.Split(raw, -1)
	}
	seen := make(map[string]bool)
	for _, candidate := range candidates {
		candidate = strings.TrimRight(strings.TrimSpace(candidate), urlTrailingPunct)
		if candidate == "" {
			continue
		}
		u, ok := parseHTTPURL(candidate)
		if !ok {
			res.invalid++
			continue
		}
		key := u.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		if max > 0 && len(res.items) >= max {
			res.truncated = true
			continue
		}
		res.items = append(res.items, model.Attachment{
			Name:      attachmentName(u),
			URL:       key,
			MediaType: mediaType(u),
		})
	}
	return res
}

func parseHTTPURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, false
	}
	u.Scheme = scheme
	return u, true
}

func attachmentName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return u.Hostname()
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		return unescaped
	}
	return base
}

func mediaType(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return "application/octet-stream"
	}
	typ := mime.TypeByExtension(ext)
	if typ == "" {
		return "application/octet-stream"
	}
	if mt, _, err := mime.ParseMediaType(typ); err == nil {
		return mt
	}
	return typ
}
