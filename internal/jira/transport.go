package jira

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gi8lino/jiralink/internal/fetcher"
)

// maxRedirects is the number of redirects followed per request.
const maxRedirects = 1

// newHTTPTransport returns a tuned Transport with optional TLS skipping.
func newHTTPTransport(skipInsecure bool) *http.Transport {
	// use sane pooling so pagination isn’t penalized
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: skipInsecure, // NOTE: intended for dev only
		},

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// newHTTPClient builds an http.Client with transport + request timeout.
func newHTTPClient(skipTLSVerify bool, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newHTTPTransport(skipTLSVerify),
	}
}

// authTransport applies an AuthFunc to every request it forwards.
type authTransport struct {
	auth AuthFunc
	base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.auth != nil {
		req = req.Clone(req.Context())
		t.auth(req)
	}
	return t.transport().RoundTrip(req)
}

func (t *authTransport) transport() http.RoundTripper {
	if t.base != nil {
		return t.base
	}
	return http.DefaultTransport
}

// get executes one authenticated GET against path + query and returns status and body.
// A single redirect is followed by re-issuing the request against its Location; a second one fails.
// The status is not classified here.
func (c *Client) get(ctx context.Context, path string, query map[string]string) (status int, body []byte, err error) {
	spec := fetcher.RequestSpec{Path: path, Query: query}
	u, err := spec.Normalize(c.APIURL)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: path, Err: fmt.Errorf("parse path: %w", err)}
	}
	endpoint := spec.Endpoint()

	for redirects := 0; ; redirects++ {
		status, body, location, err := c.roundTrip(ctx, u)
		c.metrics.ObserveRequest(endpoint, status)
		if err != nil {
			return status, nil, &Error{Kind: KindTransport, Status: status, Op: path, Err: err}
		}
		if !isRedirect(status) {
			return status, body, nil
		}
		if redirects >= maxRedirects {
			return status, body, &Error{Kind: KindTransport, Status: status, Op: path, Err: errors.New("redirect loop: refusing to follow a second redirect")}
		}
		if location == nil {
			return status, body, &Error{Kind: KindTransport, Status: status, Op: path, Err: errors.New("redirect without Location header")}
		}
		c.logger.Debug("following redirect", "from", u.Redacted(), "to", location.Redacted())
		u = location
	}
}

// roundTrip performs a single GET without following redirects.
func (c *Client) roundTrip(ctx context.Context, u *url.URL) (status int, body []byte, location *url.URL, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}
	if c.auth != nil {
		c.auth(req) // apply authentication
	}
	req.Header.Set("Accept", "application/json")

	hc := *c.Client
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil, fmt.Errorf("read response: %w", err)
	}
	if isRedirect(resp.StatusCode) {
		if loc, lerr := resp.Location(); lerr == nil {
			location = loc
		}
	}
	return resp.StatusCode, body, location, nil
}

// isRedirect reports whether status asks the client to repeat the request elsewhere.
func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
