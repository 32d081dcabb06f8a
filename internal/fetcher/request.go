package fetcher

import (
	"net/url"
	"sort"
	"strings"
)

// RequestSpec describes a single GET the transport should execute.
type RequestSpec struct {
	Path  string
	Query map[string]string
}

// Normalize resolves base+path and merges the query deterministically.
// It returns the absolute URL to request.
func (r *RequestSpec) Normalize(base *url.URL) (*url.URL, error) {
	u, err := resolveURL(base, r.Path)
	if err != nil {
		return nil, err
	}
	mergeQuery(u, r.Query)
	return u, nil
}

// Endpoint returns the first path segment, used as a low-cardinality metric label.
func (r *RequestSpec) Endpoint() string {
	p := strings.TrimLeft(r.Path, "/")
	if i := strings.IndexAny(p, "/?"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}

// resolveURL parses raw and resolves it against base if not absolute.
// A base without trailing slash is treated as a directory so "search" lands below it.
func resolveURL(base *url.URL, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimLeft(raw, "/"))
	if err != nil {
		return nil, err
	}
	if u.IsAbs() || base == nil {
		return u, nil
	}
	b := *base
	if !strings.HasSuffix(b.Path, "/") {
		b.Path += "/"
		if b.RawPath != "" {
			b.RawPath += "/"
		}
	}
	return b.ResolveReference(u), nil
}

// mergeQuery merges kv into u.Query() in a deterministic way and updates u.RawQuery.
// Empty keys are ignored; empty values are skipped to avoid surprising "?k=" entries.
func mergeQuery(u *url.URL, kv map[string]string) {
	if u == nil || len(kv) == 0 {
		return
	}
	q := u.Query()

	keys := make([]string, 0, len(kv))
	for k := range kv {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if v := kv[k]; v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
}
