package domain

import "net/url"

// Version is a project version (release) as reported by the tracker.
type Version struct {
	Self     *url.URL
	ID       int64
	Name     string
	Archived bool
	Released bool
}

// Equal reports whether two versions carry the same values.
// Self URIs compare by their string form.
func (v Version) Equal(o Version) bool {
	return v.ID == o.ID &&
		v.Name == o.Name &&
		v.Archived == o.Archived &&
		v.Released == o.Released &&
		urlString(v.Self) == urlString(o.Self)
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
