// Package rest talks to the hosted store through its PostgREST interface.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"taskscope/internal/store"
)

// Client is a store.Client over HTTP.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	// Schema selects a non-default schema through the profile headers.
	Schema string
}

var _ store.Client = (*Client)(nil)

const defaultTimeout = 30 * time.Second

// New creates a client authenticating with the service key. The client is
// safe for concurrent use once built; callers changing Timeout afterwards
// must also replace HTTPClient.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		Timeout:    defaultTimeout,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("store error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	v, err := Encode(q)
	if err != nil {
		return nil, err
	}
	endpoint := "rest/v1/" + url.PathEscape(table)
	if enc := v.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var rows []store.Row
	if err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	var rows []store.Row
	headers := map[string]string{"Prefer": "return=representation"}
	if err := c.do(ctx, http.MethodPost, "rest/v1/"+url.PathEscape(table), row, headers, &rows); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: empty representation", table)
	}
	return rows[0], nil
}

func (c *Client) Call(ctx context.Context, procedure string, args map[string]any) ([]store.Row, error) {
	if args == nil {
		args = map[string]any{}
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "rest/v1/rpc/"+url.PathEscape(procedure), args, nil, &raw); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", store.ErrUnknownProcedure, procedure)
		}
		return nil, fmt.Errorf("call %s: %w", procedure, err)
	}
	return decodeResult(raw)
}

// decodeResult accepts the set, single-row and null shapes a procedure may return.
func decodeResult(raw json.RawMessage) ([]store.Row, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var rows []store.Row
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	case '{':
		var row store.Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, err
		}
		return []store.Row{row}, nil
	}
	return nil, fmt.Errorf("unexpected procedure result %s", string(raw))
}

// Encode renders a query in PostgREST's query-string grammar.
func Encode(q store.Query) (url.Values, error) {
	v := url.Values{}
	if q.Columns != "" {
		v.Set("select", q.Columns)
	}
	for _, f := range q.Filters {
		expr, err := filterExpr(f)
		if err != nil {
			return nil, err
		}
		v.Add(f.Column, expr)
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		v.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v, nil
}

func filterExpr(f store.Filter) (string, error) {
	switch f.Op {
	case store.OpEq, store.OpGte:
		return string(f.Op) + "." + fmt.Sprint(f.Value), nil
	case store.OpContains:
		return "cs.{" + quote(fmt.Sprint(f.Value)) + "}", nil
	case store.OpILike:
		return "ilike.*" + fmt.Sprint(f.Value) + "*", nil
	case store.OpIn:
		values, ok := f.Value.([]string)
		if !ok {
			return "", fmt.Errorf("in filter on %s: want []string, got %T", f.Column, f.Value)
		}
		quoted := make([]string, 0, len(values))
		for _, s := range values {
			quoted = append(quoted, quote(s))
		}
		return "in.(" + strings.Join(quoted, ",") + ")", nil
	}
	return "", fmt.Errorf("unsupported operator %q", f.Op)
}

// quote wraps values holding reserved characters in double quotes.
func quote(s string) string {
	if strings.ContainsAny(s, ",(){}\" ") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, headers map[string]string, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.Schema != "" && c.Schema != "public" {
		req.Header.Set("Accept-Profile", c.Schema)
		req.Header.Set("Content-Profile", c.Schema)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
