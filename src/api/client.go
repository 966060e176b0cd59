// Package api talks to the generation backend over JSON/HTTPS.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 20

// Credentials supplies the bearer token attached to every request.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token. The empty token sends no header.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// HTTPError is a non-2xx answer from the backend.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Client implements studio.Backend and studio.AssetBackend.
type Client struct {
	base   *url.URL
	http   *http.Client
	creds  Credentials
	logger *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithCredentials(creds Credentials) Option { return func(c *Client) { c.creds = creds } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// WithTimeout bounds every request, including long video generations.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 10 * time.Minute},
		creds:  StaticToken(""),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var (
	_ studio.Backend      = (*Client)(nil)
	_ studio.AssetBackend = (*Client)(nil)
)

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, body any, segments ...string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	endpoint := c.base.JoinPath(segments...)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint.Path, err)
	}
	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", endpoint.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	return raw, nil
}

// errorMessage prefers a JSON error/message field over the raw body.
func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return msg
}

func (c *Client) Generate(ctx context.Context, req *studio.GenerateRequest) (*studio.GenerateResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, req, "generate-unified")
	if err != nil {
		return nil, err
	}
	var out studio.GenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}
	return &out, nil
}

func (c *Client) Conversation(ctx context.Context, id string) (*studio.ConversationHistory, error) {
	raw, err := c.do(ctx, http.MethodGet, nil, "conversations", id)
	if err != nil {
		return nil, err
	}
	var out studio.ConversationHistory
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

// assetFrom reads the asset either from a nested "asset" object or from the
// top level of the response.
func assetFrom(body gjson.Result, id string) (studio.Asset, error) {
	src := body
	if nested := body.Get("asset"); nested.IsObject() {
		src = nested
	}
	var a studio.Asset
	if err := json.Unmarshal([]byte(src.Raw), &a); err != nil {
		return studio.Asset{}, fmt.Errorf("decode asset: %w", err)
	}
	if a.ID == "" {
		a.ID = id
	}
	return a, nil
}

func (c *Client) ToggleLike(ctx context.Context, assetID string) (*studio.LikeResult, error) {
	raw, err := c.do(ctx, http.MethodPost, nil, "assets", assetID, "toggle-like")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode like response: invalid json")
	}
	body := gjson.ParseBytes(raw)
	res := &studio.LikeResult{
		Liked:   body.Get("liked").Bool(),
		Deleted: body.Get("deleted").Bool(),
	}
	if res.Deleted {
		res.Asset = studio.Asset{ID: assetID}
		return res, nil
	}
	if res.Asset, err = assetFrom(body, assetID); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) IncrementDownload(ctx context.Context, assetID string) (*studio.DownloadResult, error) {
	raw, err := c.do(ctx, http.MethodPost, nil, "assets", assetID, "increment-download")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode download response: invalid json")
	}
	body := gjson.ParseBytes(raw)
	downloads := body.Get("downloads")
	if !downloads.Exists() {
		downloads = body.Get("asset.downloads")
	}
	a, err := assetFrom(body, assetID)
	if err != nil {
		return nil, err
	}
	return &studio.DownloadResult{Asset: a, Downloads: int(downloads.Int())}, nil
}

// Fetch streams the asset at rawURL into w. The bearer token is only sent
// when the asset lives on the backend's own host.
func (c *Client) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := c.base.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parse asset url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	if u.Host == c.base.Host {
		if err := c.authorize(ctx, req); err != nil {
			return 0, err
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	return io.Copy(w, resp.Body)
}
