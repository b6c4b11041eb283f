package transport

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

	"github.com/goliatone/go-credential-broker/core"
	goerrors "github.com/goliatone/go-errors"
)

const defaultClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is bound to one bearer token and one provider base URL. It performs
// exactly one HTTP round trip per call.
type Client struct {
	baseURL              string
	bearerToken          string
	doer                 HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewClient(baseURL string, bearerToken string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		bearerToken: strings.TrimSpace(bearerToken),
		doer:        doer,
		DefaultHeaders: map[string]string{
			"Accept": "application/json",
		},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

// NewClientFactory returns a core.ClientFactory sharing doer across clients.
func NewClientFactory(doer HTTPDoer) core.ClientFactory {
	if doer == nil {
		doer = &http.Client{Timeout: defaultClientTimeout}
	}
	return func(baseURL string, bearerToken string) core.IntegrationClient {
		return NewClient(baseURL, bearerToken, doer)
	}
}

func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// Get reads a provider collection or resource. Select and Top map to the
// OData $select and $top parameters.
func (c *Client) Get(ctx context.Context, path string, opts core.ReadOptions) (core.TransportResponse, error) {
	query := make(map[string]string, len(opts.Query)+2)
	for key, value := range opts.Query {
		query[key] = value
	}
	if len(opts.Select) > 0 {
		query["$select"] = strings.Join(opts.Select, ",")
	}
	if opts.Top > 0 {
		query["$top"] = strconv.Itoa(opts.Top)
	}
	return c.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		Path:    path,
		Headers: opts.Headers,
		Query:   query,
	})
}

func (c *Client) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if c == nil || c.doer == nil {
		return core.TransportResponse{}, transportError(
			"transport: client requires an http doer",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if c.bearerToken == "" {
		return core.TransportResponse{}, core.Unauthorized("transport: client has no bearer token")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := c.resolveURL(req.Path)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request path",
			http.StatusBadRequest,
			map[string]any{"path": req.Path},
		)
	}
	query := target.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), value)
	}
	target.RawQuery = encodeQuery(query)

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, target.String(), body)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"method": method, "url": target.String()},
		)
	}
	for key, value := range c.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken)

	httpRes, err := c.doer.Do(httpReq)
	if err != nil {
		if ctxErr := requestCtx.Err(); ctxErr != nil {
			return core.TransportResponse{}, ctxErr
		}
		return core.TransportResponse{}, core.UpstreamUnavailable(err, fmt.Sprintf("transport: %s %s failed", method, target.Path))
	}
	defer httpRes.Body.Close()

	limit := c.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultResponseBodyLimit
	}
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode},
		)
	}
	if int64(len(payload)) > limit {
		return core.TransportResponse{}, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode, "response_limit_b": limit},
		)
	}

	response := core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
	}
	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		return response, rejectedResponse(httpRes.StatusCode, payload, map[string]any{
			"method": method,
			"path":   target.Path,
		})
	}
	return response, nil
}

func (c *Client) resolveURL(path string) (*url.URL, error) {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return url.Parse(path)
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("transport: base url is required for relative path %q", path)
	}
	return url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
}

// encodeQuery keeps OData's "$" prefix readable; url.Values.Encode would
// escape it.
func encodeQuery(values url.Values) string {
	encoded := values.Encode()
	return strings.ReplaceAll(encoded, "%24", "$")
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.IntegrationClient = (*Client)(nil)
