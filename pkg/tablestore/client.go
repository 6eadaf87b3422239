// Package tablestore is a client for a hosted table store that exposes each
// table as a REST resource with row filters, ordering and paging, in the
// PostgREST vocabulary (GET/POST/PATCH/DELETE /rest/v1/{table}).
package tablestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
)

// DefaultTimeout bounds every call when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config holds the connection settings of a Client.
type Config struct {
	// BaseURL is the project URL; requests go to BaseURL + "/rest/v1/{table}".
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client issues row-oriented calls against the table store.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	log    *logrus.Entry
}

// Query narrows a call to matching rows. Limit nil means no limit.
type Query struct {
	Filters []query.Condition
	// Nulls filters on IS NULL (true) / IS NOT NULL (false).
	Nulls   map[string]bool
	Order   *query.OrderBy
	Limit   *int64
	Offset  int64
	Columns []string
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("table store URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid table store URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid table store URL %q: scheme must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   httpClient,
		log:    logger.WithField("component", "tablestore"),
	}, nil
}

// Select returns the rows of table matching q.
func (c *Client) Select(ctx context.Context, table string, q Query) (query.RowSet, error) {
	return c.do(ctx, http.MethodGet, table, q, nil, true)
}

// Insert posts rows in one batch. The stored rows are returned when returning is set.
func (c *Client) Insert(ctx context.Context, table string, rows []query.Row, returning bool) (query.RowSet, error) {
	payload := make([]map[string]any, len(rows))
	for i, r := range rows {
		payload[i] = encodeRow(r)
	}
	return c.do(ctx, http.MethodPost, table, Query{}, payload, returning)
}

// Update patches every row matching q with values.
func (c *Client) Update(ctx context.Context, table string, q Query, values query.Row, returning bool) (query.RowSet, error) {
	return c.do(ctx, http.MethodPatch, table, q, encodeRow(values), returning)
}

// Delete removes every row matching q.
func (c *Client) Delete(ctx context.Context, table string, q Query, returning bool) (query.RowSet, error) {
	return c.do(ctx, http.MethodDelete, table, q, nil, returning)
}

func (c *Client) do(ctx context.Context, method, table string, q Query, body any, returning bool) (query.RowSet, error) {
	u := c.base.JoinPath("rest", "v1", table)
	u.RawQuery = EncodeQuery(q).Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		if returning {
			req.Header.Set("Prefer", "return=representation")
		} else {
			req.Header.Set("Prefer", "return=minimal")
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"table":    table,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("table store call")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	if !returning && method != http.MethodGet {
		return query.RowSet{}, nil
	}
	return DecodeRows(data)
}

// EncodeQuery renders q as PostgREST query parameters.
func EncodeQuery(q Query) url.Values {
	v := url.Values{}
	if len(q.Columns) > 0 {
		v.Set("select", strings.Join(q.Columns, ","))
	}
	for _, f := range q.Filters {
		v.Add(f.Column, FilterOperator(f.Op)+"."+FormatValue(f.Value))
	}
	for col, isNull := range q.Nulls {
		if isNull {
			v.Add(col, "is.null")
		} else {
			v.Add(col, "not.is.null")
		}
	}
	if q.Order != nil {
		dir := "asc"
		if q.Order.Descending {
			dir = "desc"
		}
		v.Set("order", q.Order.Column+"."+dir)
	}
	if q.Limit != nil {
		v.Set("limit", strconv.FormatInt(*q.Limit, 10))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.FormatInt(q.Offset, 10))
	}
	return v
}

// FilterOperator maps a comparison operator to its filter keyword.
func FilterOperator(op query.Operator) string {
	switch op {
	case query.OpGte:
		return "gte"
	case query.OpLte:
		return "lte"
	case query.OpGt:
		return "gt"
	case query.OpLt:
		return "lt"
	default:
		return "eq"
	}
}

// FormatValue renders a filter operand.
func FormatValue(v query.Value) string {
	switch x := query.NormalizeValue(v).(type) {
	case nil:
		return "null"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func encodeRow(r query.Row) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		if t, ok := v.(time.Time); ok {
			out[k] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	return out
}

// DecodeRows decodes a JSON array of row objects. Numbers become int64 when
// integral and float64 otherwise.
func DecodeRows(data []byte) (query.RowSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return query.RowSet{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}

	rows := make(query.RowSet, len(raw))
	for i, obj := range raw {
		row := make(query.Row, len(obj))
		for k, v := range obj {
			row[k] = DecodeValue(v)
		}
		rows[i] = row
	}
	return rows, nil
}

// DecodeValue converts a value decoded with UseNumber into the Value set.
func DecodeValue(v any) query.Value {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
