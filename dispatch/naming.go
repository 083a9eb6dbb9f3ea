package dispatch

import (
	"strconv"
	"strings"
)

// NormalizeServerName lower-cases name and collapses every run of characters
// outside [a-z0-9] into a single underscore.
func NormalizeServerName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "server"
	}
	return b.String()
}

// ResolveName picks the registry display name for a tool. The local name is
// used when free; otherwise it is prefixed with the normalized server name,
// and numeric suffixes break any remaining tie. existing is not modified.
func ResolveName(original, serverName string, existing map[string]struct{}) string {
	if _, taken := existing[original]; !taken {
		return original
	}
	prefixed := NormalizeServerName(serverName) + "_" + original
	if _, taken := existing[prefixed]; !taken {
		return prefixed
	}
	for n := 2; ; n++ {
		candidate := prefixed + "_" + strconv.Itoa(n)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}
