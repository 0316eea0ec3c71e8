// Package rest provides a thin HTTP client tailored to calling a WebDAV
// server: building requests from a set of Opts, running an ErrorHandler
// over non-2xx responses, and decoding XML bodies.
package rest

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/pkg/errors"
)

// Opts describes a single HTTP call to make with a Client.
type Opts struct {
	Method        string
	Path          string            // relative to the Client's root
	Body          io.Reader         // request body, if any
	ExtraHeaders  map[string]string // extra headers to set on the request
	ContentLength *int64            // explicit Content-Length, overriding Body's
	NoResponse    bool              // don't trouble the caller with a response body
}

// ErrorHandler turns a non-2xx http.Response into an error. The default
// ErrorHandler returns a generic *Error built from the status line.
type ErrorHandler func(resp *http.Response) error

// Client wraps an *http.Client with a root URL, optional basic auth, a
// pluggable ErrorHandler, and header/cookie bookkeeping, in the spirit of
// the teacher's session layer: one Client per backend connection.
type Client struct {
	mu           sync.Mutex
	c            *http.Client
	rootURL      string
	userName     string
	password     string
	headers      map[string]string
	errorHandler ErrorHandler
}

// NewClient wraps c (or http.DefaultClient if nil) as a rest.Client.
func NewClient(c *http.Client) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{
		c:            c,
		headers:      map[string]string{},
		errorHandler: defaultErrorHandler,
	}
}

func defaultErrorHandler(resp *http.Response) error {
	body, _ := ReadBody(resp)
	return &Error{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}

// Error is the generic error shape returned when a response cannot be
// decoded into something more specific; backend-specific error types
// (e.g. the WebDAV multistatus Error) embed the same fields.
type Error struct {
	Status     string `xml:"-"`
	StatusCode int    `xml:"-"`
	Message    string `xml:",chardata"`
}

func (e *Error) Error() string {
	out := e.Status
	if e.Message != "" {
		out += ": " + e.Message
	}
	return out
}

// SetRoot sets the root URL that relative Opts.Path values are resolved
// against.
func (c *Client) SetRoot(root string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rootURL = root
	return c
}

// SetUserPass sets HTTP basic auth credentials used on every request.
func (c *Client) SetUserPass(user, pass string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userName = user
	c.password = pass
	return c
}

// SetErrorHandler overrides the function used to turn non-2xx responses
// into errors.
func (c *Client) SetErrorHandler(fn ErrorHandler) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = fn
	return c
}

// SetHeader sets an extra header sent with every request, such as a
// session cookie captured from a previous response.
func (c *Client) SetHeader(name, value string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[name] = value
	return c
}

// RemoveHeader removes a previously set header.
func (c *Client) RemoveHeader(name string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.headers, name)
	return c
}

func (c *Client) url(p string) (string, error) {
	c.mu.Lock()
	root := c.rootURL
	c.mu.Unlock()
	if root == "" {
		return p, nil
	}
	base, err := url.Parse(root)
	if err != nil {
		return "", err
	}
	joined, err := URLJoin(base, p)
	if err != nil {
		return "", err
	}
	return joined.String(), nil
}

// newRequest builds the *http.Request for opts, applying auth and headers.
func (c *Client) newRequest(ctx context.Context, opts *Opts) (*http.Request, error) {
	u, err := c.url(opts.Path)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't build request URL")
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, u, opts.Body)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't construct request")
	}

	c.mu.Lock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	user, pass := c.userName, c.password
	c.mu.Unlock()

	for k, v := range opts.ExtraHeaders {
		req.Header.Set(k, v)
	}
	if opts.ContentLength != nil {
		req.ContentLength = *opts.ContentLength
	}
	if user != "" || pass != "" {
		req.SetBasicAuth(user, pass)
	}
	return req, nil
}

// Call issues the request described by opts and returns the raw response.
// Non-2xx responses are passed to the Client's ErrorHandler and returned
// as the error; the caller is still responsible for closing resp.Body
// unless opts.NoResponse is set, in which case Call closes it itself.
func (c *Client) Call(opts *Opts) (resp *http.Response, err error) {
	return c.call(context.Background(), opts)
}

// CallContext is Call with an explicit context for cancellation.
func (c *Client) CallContext(ctx context.Context, opts *Opts) (resp *http.Response, err error) {
	return c.call(ctx, opts)
}

func (c *Client) call(ctx context.Context, opts *Opts) (resp *http.Response, err error) {
	req, err := c.newRequest(ctx, opts)
	if err != nil {
		return nil, err
	}
	resp, err = c.c.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "HTTP request failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.mu.Lock()
		handler := c.errorHandler
		c.mu.Unlock()
		err = handler(resp)
		_ = resp.Body.Close()
		return resp, err
	}
	if opts.NoResponse {
		defer func() {
			_ = resp.Body.Close()
		}()
	}
	return resp, nil
}

// CallXML calls the server and, on success, decodes the response body as
// XML into result (if non-nil). request, if non-nil, is marshalled as the
// request body first.
func (c *Client) CallXML(opts *Opts, request, result any) (resp *http.Response, err error) {
	if request != nil {
		body, err := xml.Marshal(request)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't marshal XML request")
		}
		opts.Body = bytes.NewReader(body)
		if opts.ExtraHeaders == nil {
			opts.ExtraHeaders = map[string]string{}
		}
		opts.ExtraHeaders["Content-Type"] = "application/xml"
	}
	resp, err = c.Call(opts)
	if err != nil {
		return resp, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if result == nil {
		return resp, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, errors.Wrap(err, "couldn't read response body")
	}
	if len(body) == 0 {
		return resp, nil
	}
	if err := xml.Unmarshal(body, result); err != nil {
		return resp, errors.Wrap(err, "couldn't decode XML response")
	}
	return resp, nil
}

// ReadBody reads and closes resp.Body, returning its contents.
func ReadBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return io.ReadAll(resp.Body)
}
