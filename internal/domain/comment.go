package domain

// Comment is a single comment on an issue.
type Comment struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Author string `json:"author"`
}
