package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"

	"github.com/gi8lino/jiralink/internal/domain"
	"github.com/gi8lino/jiralink/internal/fetcher"
)

// commentBody is the payload for creating or editing a comment.
type commentBody struct {
	Body string `json:"body"`
}

// GetCommentsFor returns the comments of an issue in server order.
func (c *Client) GetCommentsFor(ctx context.Context, issueKey string) ([]domain.Comment, error) {
	path := "issue/" + url.PathEscape(issueKey) + "/comment"
	status, body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get comments for %s: %w", issueKey, err)
	}
	if status != http.StatusOK {
		return nil, Classify(status, path, body)
	}
	comments, err := DecodeComments(body)
	if err != nil {
		c.logDecodeFailure(err)
		return nil, err
	}
	return comments, nil
}

// AddComment adds a comment with text to the issue and returns it as stored.
func (c *Client) AddComment(ctx context.Context, issueKey, text string) (domain.Comment, error) {
	path := "issue/" + url.PathEscape(issueKey) + "/comment"
	var raw json.RawMessage
	if err := c.send(ctx, http.MethodPost, path, commentBody{Body: text}, &raw); err != nil {
		return domain.Comment{}, fmt.Errorf("add comment to %s: %w", issueKey, err)
	}
	return c.decodeWrittenComment(raw)
}

// UpdateComment replaces the text of an existing comment on the issue.
func (c *Client) UpdateComment(ctx context.Context, issueKey string, comment domain.Comment) (domain.Comment, error) {
	path := "issue/" + url.PathEscape(issueKey) + "/comment/" + strconv.FormatInt(comment.ID, 10)
	var raw json.RawMessage
	if err := c.send(ctx, http.MethodPut, path, commentBody{Body: comment.Text}, &raw); err != nil {
		return domain.Comment{}, fmt.Errorf("update comment %d on %s: %w", comment.ID, issueKey, err)
	}
	return c.decodeWrittenComment(raw)
}

// GetStatusFor returns the current workflow status name of an issue.
func (c *Client) GetStatusFor(ctx context.Context, issueKey string) (string, error) {
	path := "issue/" + url.PathEscape(issueKey)
	status, body, err := c.get(ctx, path, map[string]string{"fields": "status"})
	if err != nil {
		return "", fmt.Errorf("get status of %s: %w", issueKey, err)
	}
	if status != http.StatusOK {
		return "", Classify(status, path, body)
	}
	name := gjson.GetBytes(body, "fields.status.name")
	if name.Type != gjson.String {
		err := &DecodeError{What: "issue status", Raw: string(body), Err: errors.New(`missing "fields.status.name"`)}
		c.logDecodeFailure(err)
		return "", err
	}
	return name.String(), nil
}

// AvailableTransitions returns transition ids keyed by transition name for an issue.
func (c *Client) AvailableTransitions(ctx context.Context, issueKey string) (map[string]string, error) {
	path := "issue/" + url.PathEscape(issueKey) + "/transitions"
	status, body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get transitions of %s: %w", issueKey, err)
	}
	if status != http.StatusOK {
		return nil, Classify(status, path, body)
	}
	list := gjson.GetBytes(body, "transitions")
	if !list.IsArray() {
		err := &DecodeError{What: "transitions", Raw: string(body), Err: errors.New(`missing "transitions"`)}
		c.logDecodeFailure(err)
		return nil, err
	}
	out := make(map[string]string)
	for _, t := range list.Array() {
		out[t.Get("name").String()] = t.Get("id").String()
	}
	return out, nil
}

// DoTransition moves an issue through the named workflow action.
// Unknown actions are logged and ignored.
func (c *Client) DoTransition(ctx context.Context, issueKey, action string) error {
	available, err := c.AvailableTransitions(ctx, issueKey)
	if err != nil {
		return err
	}
	id, ok := available[action]
	if !ok {
		c.logger.Info("workflow action not available", "issue", issueKey, "action", action)
		return nil
	}
	payload := map[string]any{"transition": map[string]string{"id": id}}
	path := "issue/" + url.PathEscape(issueKey) + "/transitions"
	if err := c.send(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("transition %s via %q: %w", issueKey, action, err)
	}
	c.Invalidate(issueKey)
	return nil
}

// send writes body as JSON with method to path and decodes a JSON answer into out, if given.
func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	spec := fetcher.RequestSpec{Path: path}
	u, err := spec.Normalize(c.APIURL)
	if err != nil {
		return &Error{Kind: KindTransport, Op: path, Err: fmt.Errorf("parse path: %w", err)}
	}

	hc := *c.Client
	hc.Transport = &authTransport{auth: c.auth, base: c.Client.Transport}

	rb := requests.
		URL(u.String()).
		Client(&hc).
		Method(method).
		Accept("application/json").
		BodyJSON(body).
		AddValidator(c.classifyResponse(spec.Endpoint(), path))
	if out != nil {
		rb = rb.ToJSON(out)
	}

	if err := rb.Fetch(ctx); err != nil {
		var classified *Error
		if errors.As(err, &classified) {
			return classified
		}
		c.metrics.ObserveRequest(spec.Endpoint(), 0)
		return &Error{Kind: KindTransport, Op: path, Err: err}
	}
	return nil
}

// classifyResponse records the status and turns non-2xx answers into classified errors.
func (c *Client) classifyResponse(endpoint, op string) requests.ResponseHandler {
	return func(res *http.Response) error {
		c.metrics.ObserveRequest(endpoint, res.StatusCode)
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return Classify(res.StatusCode, op, body)
	}
}

// decodeWrittenComment decodes the comment echoed back by a write.
func (c *Client) decodeWrittenComment(raw json.RawMessage) (domain.Comment, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return domain.Comment{}, nil
	}
	cm, err := decodeComment(gjson.ParseBytes(raw))
	if err != nil {
		c.logDecodeFailure(err)
		return domain.Comment{}, err
	}
	return cm, nil
}
