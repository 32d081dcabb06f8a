package mocktracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NewHandler mounts every configured route on a mux serving files from data.
func NewHandler(cfg Config, data fs.FS, logger *slog.Logger, logBody bool) (http.Handler, error) {
	cfg.Routes = cloneRoutes(cfg.Routes)
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	for _, rt := range cfg.Routes {
		pattern := rt.Path
		if rt.Method != "" {
			pattern = strings.ToUpper(rt.Method) + " " + rt.Path
		}
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			if cfg.RandomDelay {
				applyRandomDelay(200, 1000)
			}
			logRequest(logger, r, logBody)
			handleRoute(w, r, data, rt)
		})
		logger.Debug("route mounted", "pattern", pattern)
	}
	return mux, nil
}

// cloneRoutes deep-copies routes and their select and paginate blocks.
func cloneRoutes(routes []Route) []Route {
	out := make([]Route, len(routes))
	for i, rt := range routes {
		if rt.Select != nil {
			sel := *rt.Select
			rt.Select = &sel
		}
		if rt.Paginate != nil {
			p := *rt.Paginate
			rt.Paginate = &p
		}
		out[i] = rt
	}
	return out
}

// handleRoute processes one request for a configured route.
func handleRoute(w http.ResponseWriter, r *http.Request, data fs.FS, rt Route) {
	fileName, err := selectFile(r, rt.Select)
	if err != nil {
		http.Error(w, "selection error: "+err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := fs.ReadFile(data, fileName)
	if err != nil {
		writeJSON(w, http.StatusNotFound, []byte(`{"errorMessages":["mock data not found: `+fileName+`"]}`))
		return
	}

	// No pagination → write as-is.
	if rt.Paginate == nil {
		writeJSON(w, rt.Status, raw)
		return
	}

	payload, items, err := decodeForPagination(raw, rt.ItemsField)
	if err != nil {
		http.Error(w, "invalid mock JSON: "+err.Error(), http.StatusInternalServerError)
		return
	}

	start, limit := resolveReqPaging(r, *rt.Paginate)
	page, err := buildPaginatedPage(payload, items, rt.ItemsField, *rt.Paginate, start, limit)
	if err != nil {
		http.Error(w, "paginate error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	b, _ := json.Marshal(page)
	writeJSON(w, rt.Status, b)
}

// selectFile resolves the data file name according to the route's Select config.
func selectFile(r *http.Request, s *Select) (string, error) {
	var raw string
	switch strings.ToLower(strings.TrimSpace(s.From)) {
	case "static":
		return s.Static, nil
	case "query":
		raw = r.URL.Query().Get(s.Key)
	case "header":
		raw = r.Header.Get(s.Key)
	case "path":
		raw = r.URL.Path
	default:
		return "", fmt.Errorf("unsupported select.from=%q", s.From)
	}
	token, err := applyRegex(raw, s.Regex)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(s.FileTemplate, token), nil
}

// applyRegex returns the first capture group if regex is provided, otherwise the raw value.
func applyRegex(s, re string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty selection value")
	}
	if strings.TrimSpace(re) == "" {
		return s, nil
	}
	rx, err := regexp.Compile(re)
	if err != nil {
		return "", fmt.Errorf("bad regex: %w", err)
	}
	m := rx.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", errors.New("no regex capture match")
	}
	return m[1], nil
}

// decodeForPagination parses an object payload and returns it with its items array.
func decodeForPagination(raw []byte, itemsField string) (map[string]any, []any, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, err
	}

	field := itemsField
	if field == "" {
		field = detectItemsField(payload)
	}
	v, ok := payload[field]
	if !ok {
		return nil, nil, fmt.Errorf("itemsField %q not present", field)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("itemsField %q is not an array", field)
	}
	return payload, arr, nil
}

// resolveReqPaging extracts start and limit from the query.
// An explicit limit of 0 is honored so count probes receive no items.
func resolveReqPaging(r *http.Request, p Paginate) (start, limit int) {
	start, limit = 0, p.DefaultLimit
	q := r.URL.Query()
	if v := q.Get(p.StartField); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			start = n
		}
	}
	if v := q.Get(p.LimitField); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}
	return start, limit
}

// buildPaginatedPage returns a copy of payload with items sliced and counters set.
func buildPaginatedPage(payload map[string]any, items []any, itemsField string, p Paginate, start, limit int) (map[string]any, error) {
	if itemsField == "" {
		itemsField = detectItemsField(payload)
	}
	if itemsField == "" {
		return nil, errors.New("cannot determine items field to replace")
	}

	total := len(items)
	start = min(max(start, 0), total)
	end := min(start+max(limit, 0), total)

	out := make(map[string]any, len(payload)+3)
	maps.Copy(out, payload)
	out[itemsField] = items[start:end]
	out[p.StartField] = start
	out[p.LimitField] = limit
	out[p.TotalField] = total
	return out, nil
}

// detectItemsField returns the first known items field present.
func detectItemsField(m map[string]any) string {
	for _, k := range []string{"issues", "values", "comments", "items"} {
		if v, ok := m[k]; ok {
			if _, ok := v.([]any); ok {
				return k
			}
		}
	}
	return ""
}

// writeJSON writes a JSON response with status and bytes.
func writeJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

// applyRandomDelay sleeps for a random duration between minMs and maxMs.
func applyRandomDelay(minMs, maxMs int) {
	if maxMs <= minMs {
		maxMs = minMs + 1
	}
	delta := rand.IntN(maxMs-minMs) + minMs
	time.Sleep(time.Duration(delta) * time.Millisecond)
}

// logRequest logs method, path, query and optionally the request body with credentials redacted.
func logRequest(logger *slog.Logger, r *http.Request, logBody bool) {
	redacted := http.Header{}
	for k, vv := range r.Header {
		if strings.EqualFold(k, "Authorization") || strings.EqualFold(k, "Cookie") {
			redacted[k] = []string{"<redacted>"}
		} else {
			redacted[k] = vv
		}
	}

	var body string
	if logBody && r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		r.Body = io.NopCloser(strings.NewReader(body))
	}

	logger.Info("request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery,
		"headers", redacted,
		"body", truncate(body, 2048),
	)
}

// truncate returns at most n bytes of s.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
