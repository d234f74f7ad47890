package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"whatsapp-pdf-assistant/internal/app"
	"whatsapp-pdf-assistant/internal/gateway/twilio"
	"whatsapp-pdf-assistant/internal/gateway/whatsapp"
	"whatsapp-pdf-assistant/internal/platform/logger"
	"whatsapp-pdf-assistant/internal/transport/http/response"
)

const (
	providerWhatsApp = "whatsapp"
	providerTwilio   = "twilio"

	maxWebhookBody = 1 << 20
	emptyTwiML     = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// MessageHandler turns one inbound message into a reply.
type MessageHandler interface {
	HandleMessage(ctx context.Context, in app.InboundMessage) string
}

// DedupFunc reports whether a provider message id has not been seen before.
type DedupFunc func(ctx context.Context, provider, messageID string) (bool, error)

type WhatsAppGateway interface {
	Inbound(in whatsapp.Incoming) app.InboundMessage
	SendText(ctx context.Context, to, text string) error
}

type TwilioGateway interface {
	Inbound(in twilio.Incoming) app.InboundMessage
	SendText(ctx context.Context, to, text string) error
}

type WebhookOptions struct {
	// WhatsApp and Twilio are nil when the channel is disabled.
	WhatsApp    WhatsAppGateway
	Twilio      TwilioGateway
	VerifyToken string
	Dedup       []DedupFunc
	Timeout     time.Duration
}

// WebhookHandler acknowledges provider callbacks immediately and answers the
// message in the background.
type WebhookHandler struct {
	assistant   MessageHandler
	whatsapp    WhatsAppGateway
	twilio      TwilioGateway
	verifyToken string
	dedup       []DedupFunc
	timeout     time.Duration
	log         *logger.Logger
	tasks       sync.WaitGroup
}

func NewWebhookHandler(assistant MessageHandler, opts WebhookOptions, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	return &WebhookHandler{
		assistant:   assistant,
		whatsapp:    opts.WhatsApp,
		twilio:      opts.Twilio,
		verifyToken: opts.VerifyToken,
		dedup:       opts.Dedup,
		timeout:     opts.Timeout,
		log:         log,
	}
}

// Verify answers the Meta subscription handshake.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")
	if mode == "subscribe" && h.verifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1 {
		c.String(http.StatusOK, challenge)
		return
	}
	h.log.Warn("webhook verification rejected", "mode", mode)
	c.String(http.StatusForbidden, "verification failed")
}

func (h *WebhookHandler) WhatsApp(c *gin.Context) {
	if h.whatsapp == nil {
		response.Error(c, http.StatusNotFound, response.CodeChannelDisabled, "whatsapp channel disabled")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read body failed")
		return
	}
	incoming, err := whatsapp.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNotWhatsApp) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "not a whatsapp api event")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid webhook payload")
		return
	}
	for _, in := range incoming {
		h.dispatch(c.Request.Context(), providerWhatsApp, h.whatsapp.Inbound(in), h.whatsapp.SendText)
	}
	response.OK(c, gin.H{"received": len(incoming)})
}

func (h *WebhookHandler) Twilio(c *gin.Context) {
	if h.twilio == nil {
		response.Error(c, http.StatusNotFound, response.CodeChannelDisabled, "twilio channel disabled")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	if err := c.Request.ParseForm(); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid form payload")
		return
	}
	in, err := twilio.ParseWebhook(c.Request.PostForm)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	h.dispatch(c.Request.Context(), providerTwilio, h.twilio.Inbound(in), h.twilio.SendText)
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(emptyTwiML))
}

func (h *WebhookHandler) dispatch(ctx context.Context, provider string, msg app.InboundMessage, send func(context.Context, string, string) error) {
	log := h.log.With("provider", provider, "message_id", msg.MessageID, "phone", msg.UserID)
	if msg.MessageID != "" && !h.firstSeen(ctx, log, provider, msg.MessageID) {
		log.Info("duplicate webhook delivery dropped")
		return
	}

	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()

		reply := h.handle(runCtx, log, msg)
		if reply == "" {
			return
		}
		if err := send(runCtx, msg.UserID, reply); err != nil {
			log.Error("send reply failed", "err", err)
		}
	}()
}

// handle runs the assistant. A panic becomes the fallback reply.
func (h *WebhookHandler) handle(ctx context.Context, log *logger.Logger, msg app.InboundMessage) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("message handling panicked", "panic", r)
			reply = app.FallbackReply
		}
	}()
	return h.assistant.HandleMessage(ctx, msg)
}

// firstSeen consults every dedup layer. A failing layer is skipped.
func (h *WebhookHandler) firstSeen(ctx context.Context, log *logger.Logger, provider, messageID string) bool {
	for _, seen := range h.dedup {
		fresh, err := seen(ctx, provider, messageID)
		if err != nil {
			log.Warn("dedup check failed", "err", err)
			continue
		}
		if !fresh {
			return false
		}
	}
	return true
}

// Wait blocks until background replies finish or ctx is done.
func (h *WebhookHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
