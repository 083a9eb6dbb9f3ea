package bridge

import (
	"strconv"
	"strings"
)

// MaxIdentifierLen bounds callable names; most model APIs reject longer
// function names.
const MaxIdentifierLen = 64

// Identifier rewrites name into [A-Za-z0-9_] without a leading digit.
func Identifier(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "tool"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "t_" + out
	}
	if len(out) > MaxIdentifierLen {
		out = out[:MaxIdentifierLen]
	}
	return out
}

// identifierSet hands out unique identifiers. Distinct inputs that sanitize
// to the same identifier get numeric suffixes.
type identifierSet map[string]struct{}

func (s identifierSet) claim(name string) string {
	base := Identifier(name)
	candidate := base
	for n := 2; ; n++ {
		if _, taken := s[candidate]; !taken {
			s[candidate] = struct{}{}
			return candidate
		}
		suffix := "_" + strconv.Itoa(n)
		trimmed := base
		if len(trimmed)+len(suffix) > MaxIdentifierLen {
			trimmed = trimmed[:MaxIdentifierLen-len(suffix)]
		}
		candidate = trimmed + suffix
	}
}
