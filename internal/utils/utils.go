package utils

import (
	"net/http"
	"strings"

	"github.com/gi8lino/jiralink/internal/jira"
)

// ObfuscateHeader masks the credentials of an Authorization header value.
// The scheme is kept; of the token only the first and last 2 characters remain,
// the rest is replaced with '*' so the length stays visible.
// Example: "Basic dZ*********X1" or "Bearer ab******yz"
func ObfuscateHeader(auth string) string {
	if auth == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(auth, " ")
	if !ok {
		return "[invalid header]"
	}
	token = strings.TrimSpace(token)

	n := len(token)
	if n <= 4 {
		return scheme + " " + strings.Repeat("*", n)
	}
	return scheme + " " + token[:2] + strings.Repeat("*", n-4) + token[n-2:]
}

// GetAuthorizationHeader returns the Authorization header authFunc would set.
// A nil authFunc yields "".
func GetAuthorizationHeader(authFunc jira.AuthFunc) string {
	if authFunc == nil {
		return ""
	}
	req, _ := http.NewRequest(http.MethodGet, "https://tracker.invalid", nil)
	authFunc(req)
	return req.Header.Get("Authorization")
}
