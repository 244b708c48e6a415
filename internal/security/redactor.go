package security

import (
	"regexp"
	"slices"
	"strings"
)

// Mask replaces every secret the Redactor finds.
const Mask = "[redacted]"

// secretShapes match credentials this program handles even when they were
// not registered as literals: Google API keys, Telegram bot tokens, bearer
// headers and key= query parameters on Gemini REST URLs. A shape with a
// capture group keeps the group and masks the rest of the match.
var secretShapes = []*regexp.Regexp{
	regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
	regexp.MustCompile(`(^|[^0-9])[0-9]{6,12}:[A-Za-z0-9_\-]{35}`),
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/\-]{8,}=*`),
	regexp.MustCompile(`([?&]key=)[^&\s"]+`),
}

// Redactor masks secrets in strings. A Redactor is immutable and safe for
// concurrent use; the zero value masks nothing.
type Redactor struct {
	shapes   []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor that masks the known secret shapes plus
// every non-empty literal in secrets. Longer literals are replaced first so
// a secret that contains another is masked whole.
func NewRedactor(secrets ...string) *Redactor {
	lits := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" && !slices.Contains(lits, s) {
			lits = append(lits, s)
		}
	}
	slices.SortFunc(lits, func(a, b string) int { return len(b) - len(a) })
	return &Redactor{shapes: secretShapes, literals: lits}
}

// Redact returns s with every secret replaced by Mask. A nil Redactor
// returns s unchanged.
func (r *Redactor) Redact(s string) string {
	if r == nil || s == "" {
		return s
	}
	for _, lit := range r.literals {
		s = strings.ReplaceAll(s, lit, Mask)
	}
	for _, re := range r.shapes {
		if re.NumSubexp() > 0 {
			s = re.ReplaceAllString(s, "${1}"+Mask)
			continue
		}
		s = re.ReplaceAllString(s, Mask)
	}
	return s
}
