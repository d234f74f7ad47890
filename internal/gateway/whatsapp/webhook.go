package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"whatsapp-pdf-assistant/internal/app"
)

var ErrNotWhatsApp = errors.New("not a whatsapp business account payload")

type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []Contact         `json:"contacts"`
	Messages         []Message         `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Document *Media `json:"document,omitempty"`
	Image    *Media `json:"image,omitempty"`
	Audio    *Media `json:"audio,omitempty"`
	Video    *Media `json:"video,omitempty"`
	Sticker  *Media `json:"sticker,omitempty"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

// Incoming is one user message flattened out of a webhook payload.
type Incoming struct {
	From  string
	Name  string
	ID    string
	Type  string
	Text  string
	Media *Media
}

// ParseWebhook returns every user message in the payload. Delivery status
// callbacks carry no messages and yield an empty slice.
func ParseWebhook(body []byte) ([]Incoming, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode whatsapp webhook failed: %w", err)
	}
	if payload.Object != "whatsapp_business_account" {
		return nil, ErrNotWhatsApp
	}

	var out []Incoming
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				in := Incoming{From: m.From, Name: names[m.From], ID: m.ID, Type: m.Type}
				if m.Text != nil {
					in.Text = m.Text.Body
				}
				switch {
				case m.Document != nil:
					in.Media = m.Document
				case m.Image != nil:
					in.Media = m.Image
				case m.Audio != nil:
					in.Media = m.Audio
				case m.Video != nil:
					in.Media = m.Video
				case m.Sticker != nil:
					in.Media = m.Sticker
				}
				if in.Media != nil && in.Text == "" {
					in.Text = in.Media.Caption
				}
				out = append(out, in)
			}
		}
	}
	return out, nil
}

// Inbound converts a parsed message for the assistant. Media bytes are
// fetched lazily through the client.
func (c *Client) Inbound(in Incoming) app.InboundMessage {
	msg := app.InboundMessage{
		UserID:    in.From,
		UserName:  in.Name,
		MessageID: in.ID,
		Text:      in.Text,
	}
	if in.Media != nil && in.Media.ID != "" {
		mediaID := in.Media.ID
		filename := in.Media.Filename
		if filename == "" && in.Type != "document" {
			filename = in.Type
		}
		msg.Attachments = []app.Attachment{{
			Filename: filename,
			MimeType: in.Media.MimeType,
			MediaID:  mediaID,
			Download: func(ctx context.Context) ([]byte, string, error) {
				data, err := c.DownloadMedia(ctx, mediaID)
				return data, "", err
			},
		}}
	}
	return msg
}
