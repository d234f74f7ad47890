package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whatsapp-pdf-assistant/internal/config"
	"whatsapp-pdf-assistant/internal/gateway"
)

const provider = "whatsapp"

// Client talks to the WhatsApp Cloud API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	version       string
	token         string
	phoneNumberID string
	maxTextLength int
	maxMediaBytes int64
}

func NewClient(cfg config.WhatsAppConfig, maxMediaBytes int64, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	maxLen := cfg.MaxTextLength
	if maxLen <= 0 {
		maxLen = 4096
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       baseURL,
		version:       cfg.APIVersion,
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		maxTextLength: maxLen,
		maxMediaBytes: maxMediaBytes,
	}
}

func (c *Client) endpoint(parts ...string) string {
	segs := append([]string{c.baseURL}, c.version)
	segs = append(segs, parts...)
	return strings.Join(segs, "/")
}

// SendText delivers text to the user, split into as many messages as the
// provider limit requires. Parts are sent in order and sending stops at the
// first failure.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	parts := gateway.SplitMessage(gateway.FormatForWhatsApp(text), c.maxTextLength)
	for i, part := range parts {
		if err := c.sendOne(ctx, to, part); err != nil {
			return fmt.Errorf("send part %d/%d failed: %w", i+1, len(parts), err)
		}
	}
	return nil
}

func (c *Client) sendOne(ctx context.Context, to, body string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": false,
			"body":        body,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp message failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.phoneNumberID, "messages"), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build whatsapp request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	_, err = c.do(req, "send", 1<<16)
	return err
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// DownloadMedia resolves a media id to its URL and fetches the bytes.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(mediaID), nil)
	if err != nil {
		return nil, fmt.Errorf("build media lookup failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	raw, err := c.do(req, "media lookup", 1<<16)
	if err != nil {
		return nil, err
	}
	var info mediaInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parse media lookup failed: %w", err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("media %s has no url", mediaID)
	}
	if c.maxMediaBytes > 0 && info.FileSize > c.maxMediaBytes {
		return nil, fmt.Errorf("media %s is %d bytes, limit %d", mediaID, info.FileSize, c.maxMediaBytes)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media download failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.do(req, "media download", c.maxMediaBytes)
}

// do runs req and returns at most limit bytes of a 2xx body. limit <= 0
// means unbounded.
func (c *Client) do(req *http.Request, op string, limit int64) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read whatsapp %s response failed: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &gateway.StatusError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if limit > 0 && int64(len(raw)) > limit {
		return nil, fmt.Errorf("whatsapp %s response exceeds %d bytes", op, limit)
	}
	return raw, nil
}
