package fetch

import (
	"mime"
	"net/url"
	"strings"
	"unicode/utf8"
)

const defaultName = "download"

// inferFilename picks a name for the content: Content-Disposition first,
// then the last URL path segment, then the host. The result is always
// sanitized.
func inferFilename(rawURL, disposition string) (string, error) {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return SanitizeFilename(name), nil
			}
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	segments := strings.Split(parsed.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return SanitizeFilename(segments[i]), nil
		}
	}
	if host := parsed.Hostname(); host != "" {
		return SanitizeFilename(host), nil
	}
	return defaultName, nil
}

// SanitizeFilename makes a suggested name safe for the local filesystem and
// the torrent's name field: leading dots are dropped, anything outside
// [A-Za-z0-9._-] becomes an underscore, and an empty result falls back to
// "download".
func SanitizeFilename(input string) string {
	candidate := strings.TrimSpace(input)
	result := make([]byte, 0, len(candidate))
	for _, ch := range candidate {
		if ch == '.' && len(result) == 0 {
			continue
		}
		if ch < utf8.RuneSelf && isSafeByte(byte(ch)) {
			result = append(result, byte(ch))
		} else {
			result = append(result, '_')
		}
	}
	if len(result) == 0 {
		return defaultName
	}
	return string(result)
}

func isSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-':
		return true
	}
	return false
}
