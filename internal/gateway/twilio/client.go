package twilio

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"whatsapp-pdf-assistant/internal/app"
	"whatsapp-pdf-assistant/internal/config"
	"whatsapp-pdf-assistant/internal/gateway"
	"whatsapp-pdf-assistant/internal/pkg/phone"
)

const provider = "twilio"

// Client sends WhatsApp messages through the Twilio Messaging API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	accountSID    string
	authToken     string
	from          string
	maxTextLength int
	maxMediaBytes int64
}

func NewClient(cfg config.TwilioConfig, maxMediaBytes int64, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	maxLen := cfg.MaxTextLength
	if maxLen <= 0 {
		maxLen = 1600
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       baseURL,
		accountSID:    cfg.AccountSID,
		authToken:     cfg.AuthToken,
		from:          whatsappAddress(cfg.FromNumber),
		maxTextLength: maxLen,
		maxMediaBytes: maxMediaBytes,
	}
}

// whatsappAddress renders a number as "whatsapp:+<digits>".
func whatsappAddress(number string) string {
	return "whatsapp:" + phone.E164(number)
}

// SendText delivers text in order, split to the Twilio body limit.
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
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", whatsappAddress(to))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 300 {
		return &gateway.StatusError{Provider: provider, Op: "send", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}

// DownloadMedia fetches a MediaUrl with account credentials. The filename is
// taken from Content-Disposition when present.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build twilio media request failed: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("twilio media request failed: %w", err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if c.maxMediaBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxMediaBytes+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read twilio media failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, "", &gateway.StatusError{Provider: provider, Op: "media download", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if c.maxMediaBytes > 0 && int64(len(raw)) > c.maxMediaBytes {
		return nil, "", fmt.Errorf("twilio media exceeds %d bytes", c.maxMediaBytes)
	}
	return raw, filenameFromDisposition(resp.Header.Get("Content-Disposition")), nil
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// Media is one MediaUrlN/MediaContentTypeN pair from a webhook.
type Media struct {
	URL         string
	ContentType string
}

// Incoming is a Twilio WhatsApp webhook request.
type Incoming struct {
	From        string
	ProfileName string
	MessageSID  string
	Body        string
	Media       []Media
}

// ParseWebhook reads the form fields Twilio posts for an inbound message.
func ParseWebhook(form url.Values) (Incoming, error) {
	in := Incoming{
		From:        form.Get("From"),
		ProfileName: form.Get("ProfileName"),
		MessageSID:  form.Get("MessageSid"),
		Body:        form.Get("Body"),
	}
	if in.From == "" {
		return in, fmt.Errorf("twilio webhook missing From")
	}
	n, _ := strconv.Atoi(form.Get("NumMedia"))
	for i := 0; i < n; i++ {
		u := form.Get(fmt.Sprintf("MediaUrl%d", i))
		if u == "" {
			continue
		}
		in.Media = append(in.Media, Media{URL: u, ContentType: form.Get(fmt.Sprintf("MediaContentType%d", i))})
	}
	return in, nil
}

// Inbound converts a webhook for the assistant.
func (c *Client) Inbound(in Incoming) app.InboundMessage {
	msg := app.InboundMessage{
		UserID:    in.From,
		UserName:  in.ProfileName,
		MessageID: in.MessageSID,
		Text:      in.Body,
	}
	for i, m := range in.Media {
		mediaURL := m.URL
		name := fmt.Sprintf("attachment-%d", i+1)
		if exts, _ := mime.ExtensionsByType(m.ContentType); len(exts) > 0 {
			name += exts[0]
		}
		if strings.EqualFold(m.ContentType, "application/pdf") {
			name = "document.pdf"
		}
		msg.Attachments = append(msg.Attachments, app.Attachment{
			Filename: name,
			MimeType: m.ContentType,
			Download: func(ctx context.Context) ([]byte, string, error) {
				return c.DownloadMedia(ctx, mediaURL)
			},
		})
	}
	return msg
}
