package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"spe/internal/domain"
	"spe/internal/logging"
)

// maxBlobBytes caps downloads from /download.
const maxBlobBytes = 64 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Transport is wrapped with OpenTelemetry instrumentation. Nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *logging.Logger
}

// Client talks to the document server over HTTP. The session lives in a
// cookie jar, so one Client is one session. Safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
	log  *logging.Logger

	mu       sync.Mutex
	loggedIn bool
}

var _ domain.Remote = (*Client)(nil)

// New creates a client for the server at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, opts.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		base: base,
		http: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		log: log.With("component", "remote"),
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) setLoggedIn(v bool) {
	c.mu.Lock()
	c.loggedIn = v
	c.mu.Unlock()
}

func (c *Client) isLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// ── Session ────────────────────────────────────────────────

func (c *Client) Register(ctx context.Context, creds domain.Credentials) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/register", creds)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status %d: %s", ErrRegistrationFailed, resp.StatusCode, snippet(resp.Body))
	}
	return nil
}

func (c *Client) Authenticate(ctx context.Context, creds domain.Credentials) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/login", creds)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.setLoggedIn(false)
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}
	c.setLoggedIn(true)
	c.log.Debug("session established", "email", creds.Email)
	return nil
}

// CheckSession reports whether the server still accepts the session. A
// session cookie holding an expired JWT is rejected without a round trip.
func (c *Client) CheckSession(ctx context.Context) bool {
	if c.sessionExpired() {
		c.setLoggedIn(false)
		return false
	}
	resp, err := c.do(ctx, http.MethodGet, "/check", nil, "")
	if err != nil {
		c.log.Debug("session check failed", "error", err)
		c.setLoggedIn(false)
		return false
	}
	resp.Body.Close()
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.setLoggedIn(ok)
	return ok
}

// sessionExpired looks for a JWT among the session cookies and reports
// whether its exp claim has passed. Opaque cookies never count as expired.
func (c *Client) sessionExpired() bool {
	cookies := c.http.Jar.Cookies(c.base)
	if len(cookies) == 0 {
		return false
	}
	parser := jwt.NewParser()
	for _, ck := range cookies {
		var claims jwt.RegisteredClaims
		if _, _, err := parser.ParseUnverified(ck.Value, &claims); err != nil {
			continue
		}
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return true
		}
	}
	return false
}

// ensureSession checks the session once before the first document call.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.isLoggedIn() {
		return nil
	}
	if !c.CheckSession(ctx) {
		return domain.ErrNotAuthenticated
	}
	return nil
}

// ── Overview and documents ─────────────────────────────────

func (c *Client) GetOverview(ctx context.Context) ([]domain.Descriptor, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodGet, "/toc", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := c.check(resp, "/toc"); err != nil {
		return nil, err
	}
	var out []domain.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.Corruptedf("overview: %v", err)
	}
	if out == nil {
		out = []domain.Descriptor{}
	}
	return out, nil
}

func (c *Client) SetOverview(ctx context.Context, descriptors []domain.Descriptor) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	if descriptors == nil {
		descriptors = []domain.Descriptor{}
	}
	return c.post(ctx, "/toc", descriptors)
}

type loadRequest struct {
	DocumentID string `json:"documentId"`
}

func (c *Client) LoadDocument(ctx context.Context, id string) ([]domain.PanelRecord, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/load", loadRequest{DocumentID: id})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := c.check(resp, "/load"); err != nil {
		return nil, err
	}
	var out []domain.PanelRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.Corruptedf("remote document %s: %v", id, err)
	}
	return out, nil
}

type saveRequest struct {
	ID   string               `json:"id"`
	Data []domain.PanelRecord `json:"data"`
}

func (c *Client) SaveDocument(ctx context.Context, id string, records []domain.PanelRecord) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	if records == nil {
		records = []domain.PanelRecord{}
	}
	return c.post(ctx, "/save", saveRequest{ID: id, Data: records})
}

// ── Blobs ──────────────────────────────────────────────────

// UploadBlob posts the payload as multipart field "files".
func (c *Client) UploadBlob(ctx context.Context, id string, blob domain.Blob) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files"; filename="upload.bin"`)
	ct := blob.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("multipart: %w", err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return fmt.Errorf("multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("multipart: %w", err)
	}

	path := "/store/" + url.PathEscape(id)
	resp, err := c.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.check(resp, path)
}

func (c *Client) DownloadBlob(ctx context.Context, id string) (domain.Blob, error) {
	path := "/download/" + url.PathEscape(id)
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return domain.Blob{}, err
	}
	defer resp.Body.Close()
	if err := c.check(resp, path); err != nil {
		return domain.Blob{}, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobBytes+1))
	if err != nil {
		return domain.Blob{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > maxBlobBytes {
		return domain.Blob{}, fmt.Errorf("%s: larger than %d bytes", path, maxBlobBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return domain.Blob{Data: data, ContentType: ct}, nil
}

// ── Transport helpers ──────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	return c.do(ctx, method, path, bytes.NewReader(body), "application/json")
}

func (c *Client) post(ctx context.Context, path string, v any) error {
	resp, err := c.doJSON(ctx, http.MethodPost, path, v)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.check(resp, path)
}

// check maps a response status onto the domain errors.
func (c *Client) check(resp *http.Response, path string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.setLoggedIn(false)
		return fmt.Errorf("%w: %s returned %d", domain.ErrNotAuthenticated, path, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return domain.NotFoundf("%s", path)
	default:
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, path, resp.StatusCode, snippet(resp.Body))
	}
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
