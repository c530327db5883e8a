package drawing

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	mtextUnicode   = regexp.MustCompile(`\\[Uu]\+([0-9A-Fa-f]{4})`)
	mtextStyleCode = regexp.MustCompile(`\\[ACcFfHhpQTWS][^;\\]*;`)
	mtextBreak     = regexp.MustCompile(`\\[PNX~]`)
	mtextToggle    = regexp.MustCompile(`\\[LlOoKk]`)
	specialCode    = regexp.MustCompile(`%%([cdpuoCDPUO%]|\d{3})`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// CleanText strips MTEXT formatting from a raw label and returns it
// uppercased. An empty result means the entity carries no label.
func CleanText(raw string) string {
	s := mtextUnicode.ReplaceAllStringFunc(raw, func(m string) string {
		code, err := strconv.ParseUint(m[3:], 16, 32)
		if err != nil {
			return ""
		}
		return string(rune(code))
	})
	s = mtextStyleCode.ReplaceAllString(s, "")
	s = mtextBreak.ReplaceAllString(s, " ")
	s = mtextToggle.ReplaceAllString(s, "")
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	s = specialCode.ReplaceAllString(s, "")
	s = norm.NFKC.String(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.ToUpper(strings.TrimSpace(s))
}
