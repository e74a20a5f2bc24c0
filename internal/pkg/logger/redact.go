package logger

import "strings"

// RedactSecret masks a credential-looking value for safe logging.
// "s3cr3t-access-key" → "s3***ey" — short values (≤4 chars) are fully
// masked so nothing meaningful leaks either way.
func RedactSecret(val string) string {
	if len(val) <= 4 {
		return "***"
	}
	return val[:2] + "***" + val[len(val)-2:]
}

// looksLikeSecret reports whether a field name suggests it carries a
// credential that must never reach the log stream in the clear.
func looksLikeSecret(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"secret", "password", "passwd", "access_key", "accesskey", "token", "credential", "api_key", "apikey"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
