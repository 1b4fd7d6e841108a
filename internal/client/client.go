// Package client implements the REST transport used by the admin client
// to talk to the points API.
package client

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

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/point-admin/internal/auth"
	"github.com/vyrodovalexey/point-admin/internal/model"
)

// ResourcePath is the path of the points collection, relative to the API base URL.
const ResourcePath = "api/points"

// EventsPath is the websocket endpoint streaming point change events.
const EventsPath = "ws/points"

// TotalCountHeader carries the total number of points on list responses.
const TotalCountHeader = "X-Total-Count"

const mergePatchContentType = "application/merge-patch+json"

// Errors reported through TransportError.
var (
	ErrNotFound   = errors.New("point not found")
	ErrMissingID  = errors.New("point has no id")
	ErrBadTotal   = errors.New("malformed total count header")
	ErrBadBaseURL = errors.New("base URL must be an absolute http or https URL")
)

// TransportError describes a failed API call. It is the only error kind
// returned by Client methods.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Method)
	b.WriteByte(' ')
	b.WriteString(e.Path)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports a 404 response as ErrNotFound.
func (e *TransportError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8080.
	BaseURL     string
	Credentials auth.Credentials
	Timeout     time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
	// Now stamps the cacheBuster parameter. Defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// Client calls the points REST API.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	credentials auth.Credentials
	now         func() time.Time
	logger      *zap.Logger
}

// New creates a Client from opts.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrBadBaseURL, opts.BaseURL)
	}

	c := &Client{
		httpClient:  opts.HTTPClient,
		baseURL:     base,
		credentials: opts.Credentials,
		now:         opts.Now,
		logger:      opts.Logger,
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	return c, nil
}

// ListURL returns the list URL, relative to the base URL, for page.
// Pagination parameters are only sent together with a sort; the
// cacheBuster parameter is always appended.
func (c *Client) ListURL(page model.PageRequest) string {
	var b strings.Builder
	b.WriteString(ResourcePath)
	b.WriteByte('?')

	if len(page.Sort) > 0 {
		size := page.Size
		if size <= 0 {
			size = model.DefaultPageSize
		}
		fmt.Fprintf(&b, "page=%d&size=%d&", page.Page, size)
		for _, s := range page.Sort {
			b.WriteString("sort=")
			b.WriteString(escapeSort(s))
			b.WriteByte('&')
		}
	}

	b.WriteString("cacheBuster=")
	b.WriteString(strconv.FormatInt(c.now().UnixMilli(), 10))

	return b.String()
}

// ListPoints fetches one page of points and the total count.
func (c *Client) ListPoints(ctx context.Context, page model.PageRequest) ([]model.Point, int, error) {
	path := c.ListURL(page)

	var points []model.Point
	header, err := c.do(ctx, http.MethodGet, path, "", nil, &points)
	if err != nil {
		return nil, 0, err
	}
	if points == nil {
		points = []model.Point{}
	}

	total := len(points)
	if raw := header.Get(TotalCountHeader); raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return nil, 0, &TransportError{
				Method:  http.MethodGet,
				Path:    path,
				Message: fmt.Sprintf("%s %q", TotalCountHeader, raw),
				Err:     ErrBadTotal,
			}
		}
		total = n
	}

	return points, total, nil
}

// GetPoint fetches a single point.
func (c *Client) GetPoint(ctx context.Context, id int64) (model.Point, error) {
	var point model.Point
	_, err := c.do(ctx, http.MethodGet, itemPath(id), "", nil, &point)
	return point, err
}

// CreatePoint submits a new point. Any id on p is dropped.
func (c *Client) CreatePoint(ctx context.Context, p model.Point) (model.Point, error) {
	body := model.Clean(p)
	body.ID = nil

	var created model.Point
	_, err := c.do(ctx, http.MethodPost, ResourcePath, "application/json", body, &created)
	return created, err
}

// UpdatePoint replaces the stored point with p.
func (c *Client) UpdatePoint(ctx context.Context, p model.Point) (model.Point, error) {
	return c.write(ctx, http.MethodPut, "application/json", p)
}

// PartialUpdatePoint sends the non-empty fields of p as a merge patch.
func (c *Client) PartialUpdatePoint(ctx context.Context, p model.Point) (model.Point, error) {
	return c.write(ctx, http.MethodPatch, mergePatchContentType, p)
}

// DeletePoint removes a point.
func (c *Client) DeletePoint(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, itemPath(id), "", nil, nil)
	return err
}

func (c *Client) write(ctx context.Context, method, contentType string, p model.Point) (model.Point, error) {
	if !p.HasID() {
		return model.Point{}, &TransportError{Method: method, Path: ResourcePath, Err: ErrMissingID}
	}

	var saved model.Point
	_, err := c.do(ctx, method, itemPath(p.IDValue()), contentType, model.Clean(p), &saved)
	return saved, err
}

// do performs a request against path (relative to the base URL), decoding
// a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path, contentType string, body, out any) (http.Header, error) {
	fail := func(status int, msg string, err error) error {
		return &TransportError{Method: method, Path: "/" + path, StatusCode: status, Message: msg, Err: err}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fail(0, "", fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+"/"+path, reader)
	if err != nil {
		return nil, fail(0, "", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.credentials.Apply(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fail(0, "", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, errorMessage(resp), nil)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fail(resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
		}
	}

	return resp.Header, nil
}

// errorMessage extracts the message of an ErrorResponse body, falling back
// to the status text.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body model.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// WatchPoints subscribes to server-side point change events. The returned
// channel is closed when ctx is done or the connection drops.
func (c *Client) WatchPoints(ctx context.Context) (<-chan model.PointEvent, error) {
	wsURL := *c.baseURL
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/" + EventsPath

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), c.credentials.Header())
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		return nil, &TransportError{Method: http.MethodGet, Path: "/" + EventsPath, StatusCode: status, Err: err}
	}

	events := make(chan model.PointEvent)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	go func() {
		defer close(events)
		defer close(done)
		for {
			var event model.PointEvent
			if err := conn.ReadJSON(&event); err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("point event stream closed", zap.Error(err))
				}
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func itemPath(id int64) string {
	return ResourcePath + "/" + strconv.FormatInt(id, 10)
}

// escapeSort query-escapes a sort entry but keeps the property,direction comma.
func escapeSort(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "%2C", ",")
}
