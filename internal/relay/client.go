package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"prekeyd/internal/auth"
	"prekeyd/internal/domain"
)

// Client calls the key endpoints of a prekeyd server.
type Client struct {
	Base string
	HTTP *http.Client

	authorization string
	accessKey     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBasicAuth authenticates every request as user with password. user is
// <number|uuid>[.<device>].
func WithBasicAuth(user, password string) ClientOption {
	return func(c *Client) { c.authorization = auth.BasicHeader(user, password) }
}

// WithAccessKey sends the base64 unidentified-access key on bundle fetches.
func WithAccessKey(key string) ClientOption {
	return func(c *Client) { c.accessKey = key }
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.HTTP = h }
}

// NewClient returns a Client for the server at base.
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{Base: base, HTTP: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx reply. It matches the domain error of its status
// under errors.Is.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	head := e.Method + " " + e.Path + ": " + http.StatusText(e.Status)
	if e.Message == "" {
		return head
	}
	return head + ": " + e.Message
}

// Unwrap returns the domain error the status stands for.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusUnprocessableEntity:
		return domain.ErrInvalidKeyState
	case http.StatusRequestEntityTooLarge:
		return domain.ErrRateLimited
	case http.StatusServiceUnavailable:
		return domain.ErrUnavailable
	}
	return nil
}

// KeyCount returns how many one-time prekeys the caller's device has left.
func (c *Client) KeyCount(ctx context.Context) (int, error) {
	var out domain.KeyCount
	if err := c.do(ctx, http.MethodGet, "/v2/keys", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// UploadKeys replaces the caller's device keys.
func (c *Client) UploadKeys(ctx context.Context, upload domain.KeyUpload) error {
	return c.do(ctx, http.MethodPut, "/v2/keys", upload, nil)
}

// SignedPreKey returns the caller's current signed prekey.
func (c *Client) SignedPreKey(ctx context.Context) (domain.SignedPreKey, error) {
	var out domain.SignedPreKey
	err := c.do(ctx, http.MethodGet, "/v2/keys/signed", nil, &out)
	return out, err
}

// SetSignedPreKey replaces the caller's signed prekey.
func (c *Client) SetSignedPreKey(ctx context.Context, key domain.SignedPreKey) error {
	return c.do(ctx, http.MethodPut, "/v2/keys/signed", key, nil)
}

// FetchBundle fetches target's bundle for the selected devices.
func (c *Client) FetchBundle(
	ctx context.Context,
	target domain.AmbiguousIdentifier,
	selector domain.DeviceSelector,
) (domain.KeyBundle, error) {
	var out domain.KeyBundle
	path := "/v2/keys/" + url.PathEscape(target.String()) + "/" + url.PathEscape(selector.String())
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.authorization != "":
		req.Header.Set(HeaderAuthorization, c.authorization)
	case c.accessKey != "":
		req.Header.Set(HeaderUnidentifiedAK, c.accessKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: eb.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}
