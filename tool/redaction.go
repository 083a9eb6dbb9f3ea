package tool

import "strings"

// MaskedSecretValue is used in user-facing output for literal credentials.
const MaskedSecretValue = "**********"

// MaskCredentialRef hides literal tokens. Environment references carry no
// secret and are shown as is.
func MaskCredentialRef(ref string) string {
	clean := strings.TrimSpace(ref)
	if clean == "" || strings.HasPrefix(clean, "env:") {
		return clean
	}
	return MaskedSecretValue
}

// RedactServer clones a server configuration and masks its credential.
func RedactServer(server ServerConfig) ServerConfig {
	out := CloneServer(server)
	out.CredentialRef = MaskCredentialRef(out.CredentialRef)
	return out
}

// RedactServers clones all servers and masks their credentials.
func RedactServers(servers []ServerConfig) []ServerConfig {
	out := make([]ServerConfig, 0, len(servers))
	for _, server := range servers {
		out = append(out, RedactServer(server))
	}
	return out
}
