package exportgw

import (
	"net/url"
	"regexp"
	"strings"
)

// RFC 6266 / 5987 filename parameters. The extended form is preferred because
// it is the only one that can carry non-ASCII names losslessly.
var (
	extFilenameRe   = regexp.MustCompile(`(?i)filename\*\s*=\s*UTF-8''([^;]+)`)
	plainFilenameRe = regexp.MustCompile(`(?i)filename\s*=\s*"([^"]+)"`)
	bareFilenameRe  = regexp.MustCompile(`(?i)filename\s*=\s*([^";\s]+)`)
)

// ParseContentDisposition extracts the suggested filename from a
// Content-Disposition header value. The extended (filename*=UTF-8'') form is
// preferred and percent-decoded; the plain quoted form is the fallback.
// Returns ok=false when the header carries neither.
func ParseContentDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}

	if m := extFilenameRe.FindStringSubmatch(header); m != nil {
		decoded, err := url.PathUnescape(strings.TrimSpace(m[1]))
		if err == nil && decoded != "" {
			return decoded, true
		}
	}

	if m := plainFilenameRe.FindStringSubmatch(header); m != nil {
		return m[1], true
	}
	if m := bareFilenameRe.FindStringSubmatch(header); m != nil {
		return m[1], true
	}

	return "", false
}

// SuggestedFilename derives the filename for an export result: the
// content-disposition header when it names one, otherwise stem + ".pdf".
func SuggestedFilename(res *ExportResult, stem string) string {
	if res != nil {
		if name, ok := ParseContentDisposition(res.ContentDisposition); ok {
			return name
		}
	}
	if stem == "" {
		stem = "document"
	}
	return stem + ".pdf"
}
