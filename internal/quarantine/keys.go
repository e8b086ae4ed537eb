package quarantine

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxFilenameLength = 255

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename reduces name to a single safe path segment.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if len(name) > maxFilenameLength {
		name = name[len(name)-maxFilenameLength:]
	}
	if name == "" || name == "_" {
		return "file"
	}
	return name
}

// sanitizeSegment makes an identifier safe to embed as one key segment.
func sanitizeSegment(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}

// buildQuarantineKey returns {prefix}/{org}/{unix-millis}/{random}/{filename}.
func buildQuarantineKey(prefix, orgID string, now time.Time, filename string) string {
	return fmt.Sprintf("%s/%s/%d/%s/%s",
		prefix,
		sanitizeSegment(orgID),
		now.UnixMilli(),
		strings.ReplaceAll(uuid.NewString(), "-", ""),
		SanitizeFilename(filename),
	)
}

// productionKeyFor swaps the quarantine prefix of key for the production prefix.
func productionKeyFor(quarantinePrefix, productionPrefix, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, quarantinePrefix+"/")
	if !ok || rest == "" {
		return "", false
	}
	return productionPrefix + "/" + rest, true
}
