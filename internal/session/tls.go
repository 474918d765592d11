package session

import "crypto/tls"

// insecureTLSConfig disables upstream certificate verification. Only reached
// when AppConfig.tls_verify_upstream is explicitly set to false; the default
// is true (REDESIGN FLAG, see SPEC_FULL §4.4).
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in only
}
