package lite3

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Version is sent in the User-Agent header
const Version = "0.1.0"

const (
	kvPrefix     = "/kv/"
	maxRedirects = 5
)

// Conn is a persistent connection to a single node. Requests on one Conn
// are serialized; it is safe to share between goroutines.
type Conn struct {
	host string
	port int

	client *http.Client
	// transport is nil when the client was supplied through options
	transport *http.Transport
	logger    *slog.Logger

	mu sync.Mutex
	// retired; set once the owning pool is closed, after which the
	// connection is dropped as soon as each request completes
	retired atomic.Bool
}

var _ KV = (*Conn)(nil)

// NewConn creates a connection to host:port. Nothing is dialed until the
// first request. options may be nil.
func NewConn(host string, port int, options *Options) *Conn {
	if options == nil {
		options = NewOptions()
	}
	return newConn(host, port, options, false)
}

// newConn builds a Conn. oneShot disables keep-alive, for connections that
// follow a single redirect and are then dropped.
func newConn(host string, port int, options *Options, oneShot bool) *Conn {
	c := &Conn{
		host:   host,
		port:   port,
		logger: options.log().With("node", net.JoinHostPort(host, strconv.Itoa(port))),
	}

	if options.httpClient != nil && !oneShot {
		client := *options.httpClient
		client.CheckRedirect = noRedirects
		c.client = &client
		return c
	}

	c.transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   options.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		MaxConnsPerHost:     1,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   oneShot,
		DisableCompression:  true,
	}
	c.client = &http.Client{
		Transport:     c.transport,
		Timeout:       options.timeout,
		CheckRedirect: noRedirects,
	}
	return c
}

// noRedirects hands 307 responses back to Conn, which follows them itself
func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Addr returns host:port of the node
func (c *Conn) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Close drops the idle persistent connection. The Conn stays usable and
// dials again on the next request.
func (c *Conn) Close() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	} else {
		c.client.CloseIdleConnections()
	}
}

// retire makes the Conn drop its connection after every request. Calls
// already running on it still complete.
func (c *Conn) retire() {
	c.retired.Store(true)
	c.Close()
}

func keyPath(key string) string {
	return kvPrefix + key
}

// Put stores value under key
func (c *Conn) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return newError(KindBadRequest, "key cannot be empty")
	}
	if value == nil {
		value = []byte{}
	}
	_, err := c.do(ctx, http.MethodPut, keyPath(key), "", value)
	return err
}

// Get returns the value stored under key
func (c *Conn) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, newError(KindBadRequest, "key cannot be empty")
	}
	return c.do(ctx, http.MethodGet, keyPath(key), "", nil)
}

// Delete removes key. Deleting a missing key succeeds.
func (c *Conn) Delete(ctx context.Context, key string) error {
	if key == "" {
		return newError(KindBadRequest, "key cannot be empty")
	}
	_, err := c.do(ctx, http.MethodDelete, keyPath(key), "", nil)
	if KindOf(err) == KindNotFound {
		return nil
	}
	return err
}

// PatchInt sets an integer field of the document stored under key
func (c *Conn) PatchInt(ctx context.Context, key, field string, val int64) error {
	return c.patch(ctx, key, "set_int", field, strconv.FormatInt(val, 10))
}

// PatchStr sets a string field of the document stored under key. field and
// val are query-escaped.
func (c *Conn) PatchStr(ctx context.Context, key, field, val string) error {
	return c.patch(ctx, key, "set_str", field, val)
}

func (c *Conn) patch(ctx context.Context, key, op, field, val string) error {
	if key == "" {
		return newError(KindBadRequest, "key cannot be empty")
	}
	// built by hand: url.Values would sort the parameters
	query := "op=" + op + "&field=" + url.QueryEscape(field) + "&val=" + url.QueryEscape(val)
	_, err := c.do(ctx, http.MethodPost, keyPath(key), query, nil)
	return err
}

// RawGet issues a GET for an arbitrary path, such as /cluster/map
func (c *Conn) RawGet(ctx context.Context, path string) ([]byte, error) {
	target, err := url.Parse(path)
	if err != nil || !strings.HasPrefix(target.Path, "/") {
		return nil, newError(KindBadRequest, "invalid path %q", path)
	}
	return c.do(ctx, http.MethodGet, target.Path, target.RawQuery, nil)
}

func (c *Conn) do(ctx context.Context, method, path, query string, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.perform(ctx, method, path, query, body, 0)
	if c.retired.Load() {
		c.Close()
	}
	return data, err
}

// perform must be called with mu held.
func (c *Conn) perform(ctx context.Context, method, path, query string, body []byte, depth int) ([]byte, error) {
	if depth > maxRedirects {
		return nil, newError(KindNetwork, "too many redirects")
	}

	target := &url.URL{
		Scheme:   "http",
		Host:     c.Addr(),
		Path:     path,
		RawQuery: query,
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Message: "build request", Err: err}
	}

	requestID, err := gonanoid.New(12)
	if err == nil {
		req.Header.Set("X-Request-Id", requestID)
	}
	req.Header.Set("User-Agent", "lite3-go/"+Version)
	req.Header.Set("Content-Type", "application/octet-stream")
	if body != nil {
		req.ContentLength = int64(len(body))
	}

	c.logger.Debug("request", "method", method, "path", path, "request_id", requestID, "depth", depth)

	resp, err := c.client.Do(req)
	if err != nil {
		c.Close()
		return nil, transportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Close()
		return nil, transportError("read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusTemporaryRedirect:
		return c.followRedirect(ctx, resp.Header.Get("Location"), method, body, depth)
	case resp.StatusCode == http.StatusNotFound:
		return nil, newError(KindNotFound, "key not found")
	default:
		return nil, &Error{
			Kind:    KindServerError,
			Message: "server error: " + strconv.Itoa(resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}
}

// followRedirect retries the request against the Location host through a
// one-shot connection, leaving this connection open.
func (c *Conn) followRedirect(ctx context.Context, location, method string, body []byte, depth int) ([]byte, error) {
	host, port, path, query, ok := parseLocation(location)
	if !ok {
		return nil, newError(KindServerError, "invalid redirect location %q", location)
	}

	c.logger.Debug("following redirect", "location", location, "depth", depth+1)

	hop := newConn(host, port, &Options{timeout: c.client.Timeout, logger: c.logger}, true)
	defer hop.Close()
	return hop.perform(ctx, method, path, query, body, depth+1)
}

// parseLocation accepts http://host:port[/path[?query]] only.
func parseLocation(location string) (host string, port int, path, query string, ok bool) {
	if !strings.HasPrefix(location, "http://") {
		return "", 0, "", "", false
	}
	u, err := url.Parse(location)
	if err != nil || u.Hostname() == "" || u.Port() == "" {
		return "", 0, "", "", false
	}
	port, err = strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, "", "", false
	}

	path = u.Path
	if path == "" {
		path = "/"
	}
	return u.Hostname(), port, path, u.RawQuery, true
}
