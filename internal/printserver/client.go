package printserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/xerrors"

	"label-printer/internal/capture"
)

const (
	DefaultStatusPath = "auth"
	DefaultLoginPath  = "auth"
	DefaultQueuePath  = "queue"

	// responses larger than this are not error bodies worth reading
	maxBodyBytes = 1 << 20
)

type Config struct {
	StatusPath string
	LoginPath  string
	QueuePath  string
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

func DefaultConfig() Config {
	return Config{
		StatusPath: DefaultStatusPath,
		LoginPath:  DefaultLoginPath,
		QueuePath:  DefaultQueuePath,
	}
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Receipt is the queue outcome of a successful submission.
type Receipt struct {
	AddedItems      int `json:"addedItems"`
	PositionInQueue int `json:"positionInQueue"`
}

func (r Receipt) String() string {
	items := fmt.Sprintf("%d items", r.AddedItems)
	if r.AddedItems == 1 {
		items = "one item"
	}
	return fmt.Sprintf("Added %s to queue (#%d).", items, r.PositionInQueue)
}

// Client talks to the print server. Session cookies set by the server are
// kept in the client's jar and sent with every later request.
type Client struct {
	httpClient *http.Client
	config     Config
}

func NewClient(config Config) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, xerrors.Errorf("failed to create cookie jar: %w", err)
	}

	base := config.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if config.StatusPath == "" {
		config.StatusPath = DefaultStatusPath
	}
	if config.LoginPath == "" {
		config.LoginPath = DefaultLoginPath
	}
	if config.QueuePath == "" {
		config.QueuePath = DefaultQueuePath
	}

	return &Client{
		httpClient: &http.Client{
			Jar:       jar,
			Transport: otelhttp.NewTransport(base),
		},
		config: config,
	}, nil
}

// Status reports whether the session with the server at address is authenticated.
func (c *Client) Status(ctx context.Context, address string) (bool, error) {
	var body struct {
		statusFields
		Data *statusFields `json:"data"`
	}
	if err := c.do(ctx, "status", http.MethodGet, address, c.config.StatusPath, nil, "", &body); err != nil {
		return false, err
	}

	if body.Data != nil && body.Data.authenticated() {
		return true, nil
	}
	return body.authenticated(), nil
}

func (c *Client) Login(ctx context.Context, address string, credentials Credentials) error {
	payload, err := json.Marshal(credentials)
	if err != nil {
		return xerrors.Errorf("failed to encode credentials: %w", err)
	}
	return c.do(ctx, "login", http.MethodPost, address, c.config.LoginPath, payload, "application/json", nil)
}

// Enqueue submits a payload to the print queue.
func (c *Client) Enqueue(ctx context.Context, address string, payload capture.Blob) (Receipt, error) {
	var body struct {
		Data *struct {
			AddedItems      *int `json:"addedItems"`
			PositionInQueue *int `json:"positionInQueue"`
		} `json:"data"`
	}
	if err := c.do(ctx, "enqueue", http.MethodPost, address, c.config.QueuePath, payload.Data, payload.ContentType, &body); err != nil {
		return Receipt{}, err
	}
	if body.Data == nil || body.Data.AddedItems == nil || body.Data.PositionInQueue == nil {
		return Receipt{}, &ServerError{StatusCode: http.StatusOK, Message: "response carries no queue information"}
	}
	return Receipt{AddedItems: *body.Data.AddedItems, PositionInQueue: *body.Data.PositionInQueue}, nil
}

type statusFields struct {
	Authenticated   *bool `json:"authenticated"`
	IsAuthenticated *bool `json:"isAuthenticated"`
}

func (s statusFields) authenticated() bool {
	return (s.Authenticated != nil && *s.Authenticated) || (s.IsAuthenticated != nil && *s.IsAuthenticated)
}

// do sends one request and decodes a successful JSON response into out.
// Enqueue requires 200 exactly; other endpoints accept any 2xx.
func (c *Client) do(ctx context.Context, op, method, address, path string, body []byte, contentType string, out any) error {
	target, err := Endpoint(address, path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: err}
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: err}
	}

	success := response.StatusCode >= 200 && response.StatusCode < 300
	if op == "enqueue" {
		success = response.StatusCode == http.StatusOK
	}
	if !success {
		return decodeError(response.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ServerError{
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf("malformed response from %s: %v", target, err),
		}
	}
	return nil
}

func decodeError(statusCode int, data []byte) *ServerError {
	var body struct {
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}

	e := &ServerError{StatusCode: statusCode}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != nil {
			e.Name = body.Error.Type
			e.Message = body.Error.Message
		}
		if e.Message == "" {
			e.Message = body.Message
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("request failed with status %d %s", statusCode, http.StatusText(statusCode))
	}
	return e
}

// Endpoint joins a relative endpoint path onto the server's base address.
func Endpoint(address, path string) (string, error) {
	base, err := ParseAddress(address)
	if err != nil {
		return "", err
	}
	return base.JoinPath(path).String(), nil
}

// ParseAddress validates a print server base address.
func ParseAddress(address string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("invalid print server address %q: %w", address, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid print server address %q: must be an absolute http or https URL", address)
	}
	return u, nil
}
