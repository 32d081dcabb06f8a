package jira

import (
	"fmt"
	"net/http"
	"strings"
)

// AuthFunc decorates an outgoing request with credentials.
type AuthFunc func(r *http.Request)

// NewBasicAuth returns an AuthFunc setting HTTP Basic credentials.
func NewBasicAuth(username, password string) AuthFunc {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	return func(r *http.Request) {
		r.SetBasicAuth(username, password)
	}
}

// NewBearerAuth returns an AuthFunc setting a Bearer token.
func NewBearerAuth(token string) AuthFunc {
	token = strings.TrimSpace(token)
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// ResolveAuth returns the appropriate AuthFunc based on provided credentials.
// It supports either Bearer token or Basic (username + password) authentication.
func ResolveAuth(bearerToken, username, password string) (auth AuthFunc, method string, err error) {
	switch {
	case bearerToken != "":
		return NewBearerAuth(bearerToken), "Bearer", nil
	case username != "" && password != "":
		return NewBasicAuth(username, password), "Basic", nil
	default:
		return nil, "", fmt.Errorf("no valid auth method configured: must provide either bearer token or username+password")
	}
}
