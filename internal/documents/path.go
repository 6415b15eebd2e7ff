package documents

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	id "qualtrack/pkg/domain"
)

// Kind namespaces objects under a holder.
type Kind string

const (
	KindCertification Kind = "certifications"
	KindAvatar        Kind = "avatars"
)

const maxSlugLength = 64

// BuildPath returns holders/<holder>/<kind>/<slug>-<unix-millis><ext>.
// The timestamp and slug together keep repeated uploads from colliding.
func BuildPath(holderID id.HolderID, kind Kind, name, ext string, now time.Time) string {
	slug := Slugify(name)
	if slug == "" {
		slug = "document"
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("holders/%s/%s/%s-%d%s", holderID, kind, slug, now.UnixMilli(), strings.ToLower(ext))
}

// Slugify lowercases name and collapses every run of non-alphanumerics into one dash.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}
	return strings.TrimRight(b.String(), "-")
}
