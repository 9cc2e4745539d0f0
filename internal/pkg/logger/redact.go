package logger

import "strings"

// RedactEmail masks the local part of an address for logging:
// "john.doe@example.com" becomes "jo***@example.com", and local parts of two
// characters or fewer are masked entirely. Anything that is not a single
// local@domain pair becomes "***@***".
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}
