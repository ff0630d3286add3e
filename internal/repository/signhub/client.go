package signhub

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/esign-tools/renotify/internal/domain/document"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Client talks to the SignHub REST API. It holds no local state beyond the
// HTTP client; retry policy belongs to the dispatcher's cycles, never here.
type Client struct {
	c       *http.Client
	baseURL string
	apiKey  string
	cfg     Config
	log     *zap.Logger
}

type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	PageSize  int           `mapstructure:"page_size"`
	VerifyTLS bool          `mapstructure:"verify_tls"`
}

var _ document.Provider = (*Client)(nil)

func New(cfg Config, log *zap.Logger) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyTLS,
			MinVersion:         tls.VersionTLS12,
		},
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(transport),
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Client{
		c:       client,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		cfg:     cfg,
		log:     log.With(zap.String("component", "signhub.client")),
	}
}

type apiRecipient struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

type apiDocument struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Recipients []apiRecipient `json:"recipients"`
}

type listResponse struct {
	Documents []apiDocument `json:"documents"`
}

func (d apiDocument) toDomain() *document.Document {
	out := &document.Document{ID: d.ID, Title: d.Title}
	for _, r := range d.Recipients {
		out.Recipients = append(out.Recipients, document.Recipient{
			ID:     r.ID,
			Name:   r.Name,
			Email:  r.Email,
			Status: document.RecipientStatus(r.Status),
		})
	}
	return out
}

// ListPending walks the paginated pending-documents listing until a short
// page signals the end.
func (cl *Client) ListPending(ctx context.Context) ([]*document.Document, error) {
	var out []*document.Document
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("status", "pending")
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(cl.cfg.PageSize))

		var resp listResponse
		if err := cl.getJSON(ctx, "/api/v1/documents?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("list documents page %d: %w", page, err)
		}
		for _, d := range resp.Documents {
			out = append(out, d.toDomain())
		}
		if len(resp.Documents) < cl.cfg.PageSize {
			return out, nil
		}
	}
}

func (cl *Client) GetByID(ctx context.Context, id string) (*document.Document, error) {
	var resp apiDocument
	if err := cl.getJSON(ctx, "/api/v1/documents/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

func (cl *Client) SendReminder(ctx context.Context, id string, recipientIDs []string) error {
	body, err := json.Marshal(struct {
		RecipientIDs []string `json:"recipient_ids"`
	}{RecipientIDs: recipientIDs})
	if err != nil {
		return &document.DispatchError{Detail: "encode request: " + err.Error()}
	}

	req, err := cl.newRequest(ctx, http.MethodPost, "/api/v1/documents/"+url.PathEscape(id)+"/remind", body)
	if err != nil {
		return &document.DispatchError{Detail: err.Error()}
	}

	resp, err := cl.c.Do(req)
	if err != nil {
		return &document.DispatchError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return document.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &document.DispatchError{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, readBody(resp.Body))}
	}
	return nil
}

func (cl *Client) HealthCheck(ctx context.Context) error {
	req, err := cl.newRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("health probe: %w; check provider.base_url", err)
	}
	resp, err := cl.c.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w; check network reachability of %s", err, cl.baseURL)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("health probe: status %d; check provider.api_key", resp.StatusCode)
	default:
		return fmt.Errorf("health probe: status %d; provider may be degraded, retry later", resp.StatusCode)
	}
}

func (cl *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, cl.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cl.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cl.cfg.UserAgent)
	}
	return req, nil
}

func (cl *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := cl.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := cl.c.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return document.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("status %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
