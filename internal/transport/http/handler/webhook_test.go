package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-pdf-assistant/internal/app"
	"whatsapp-pdf-assistant/internal/gateway/twilio"
	"whatsapp-pdf-assistant/internal/gateway/whatsapp"
	"whatsapp-pdf-assistant/internal/platform/logger"
	"whatsapp-pdf-assistant/internal/repository"
	"whatsapp-pdf-assistant/internal/testutil"
)

type recordingAssistant struct {
	mu       sync.Mutex
	received []app.InboundMessage
}

func (a *recordingAssistant) HandleMessage(_ context.Context, in app.InboundMessage) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.received = append(a.received, in)
	return "reply to " + in.Text
}

func (a *recordingAssistant) messages() []app.InboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]app.InboundMessage(nil), a.received...)
}

type sentText struct {
	to, text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentText
}

func (s *fakeSender) SendText(_ context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentText{to: to, text: text})
	return nil
}

func (s *fakeSender) all() []sentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentText(nil), s.sent...)
}

type fakeWhatsApp struct{ fakeSender }

func (f *fakeWhatsApp) Inbound(in whatsapp.Incoming) app.InboundMessage {
	return app.InboundMessage{UserID: in.From, UserName: in.Name, MessageID: in.ID, Text: in.Text}
}

type fakeTwilio struct{ fakeSender }

func (f *fakeTwilio) Inbound(in twilio.Incoming) app.InboundMessage {
	return app.InboundMessage{UserID: in.From, UserName: in.ProfileName, MessageID: in.MessageSID, Text: in.Body}
}

const textPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"id": "1", "changes": [{"field": "messages", "value": {
    "messaging_product": "whatsapp",
    "contacts": [{"wa_id": "15550001", "profile": {"name": "Ana"}}],
    "messages": [{"from": "15550001", "id": "wamid.1", "type": "text", "text": {"body": "/list"}}]
  }}]}]
}`

func newTestRouter(h *WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/webhook", h.Verify)
	r.POST("/webhook", h.WhatsApp)
	r.POST("/webhook/twilio", h.Twilio)
	return r
}

func waitIdle(t *testing.T, h *WebhookHandler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
}

func TestVerifyEchoesChallenge(t *testing.T) {
	h := NewWebhookHandler(&recordingAssistant{}, WebhookOptions{VerifyToken: "tok"}, logger.NewNop())
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=bad&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWhatsAppWebhookRepliesInBackground(t *testing.T) {
	assistant := &recordingAssistant{}
	wa := &fakeWhatsApp{}
	h := NewWebhookHandler(assistant, WebhookOptions{WhatsApp: wa}, logger.NewNop())
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload)))
	require.Equal(t, http.StatusOK, w.Code)
	waitIdle(t, h)

	msgs := assistant.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "15550001", msgs[0].UserID)
	assert.Equal(t, "Ana", msgs[0].UserName)
	assert.Equal(t, []sentText{{to: "15550001", text: "reply to /list"}}, wa.all())
}

func TestWhatsAppWebhookDropsRedeliveries(t *testing.T) {
	db := testutil.NewDB(t)
	processed := repository.NewProcessedMessageRepository(db)
	assistant := &recordingAssistant{}
	h := NewWebhookHandler(assistant, WebhookOptions{
		WhatsApp: &fakeWhatsApp{},
		Dedup:    []DedupFunc{processed.MarkProcessed},
	}, logger.NewNop())
	r := newTestRouter(h)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload)))
		require.Equal(t, http.StatusOK, w.Code)
	}
	waitIdle(t, h)
	assert.Len(t, assistant.messages(), 1)
}

func TestWhatsAppWebhookIgnoresStatusCallbacks(t *testing.T) {
	assistant := &recordingAssistant{}
	h := NewWebhookHandler(assistant, WebhookOptions{WhatsApp: &fakeWhatsApp{}}, logger.NewNop())
	r := newTestRouter(h)

	payload := `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.1","status":"delivered"}]}}]}]}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload)))
	assert.Equal(t, http.StatusOK, w.Code)
	waitIdle(t, h)
	assert.Empty(t, assistant.messages())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"object":"page"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTwilioWebhookAnswersWithEmptyTwiML(t *testing.T) {
	assistant := &recordingAssistant{}
	tw := &fakeTwilio{}
	h := NewWebhookHandler(assistant, WebhookOptions{Twilio: tw}, logger.NewNop())
	r := newTestRouter(h)

	form := url.Values{"From": {"whatsapp:+15550001"}, "Body": {"hello"}, "MessageSid": {"SM1"}, "ProfileName": {"Ana"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response></Response>")

	waitIdle(t, h)
	assert.Equal(t, []sentText{{to: "whatsapp:+15550001", text: "reply to hello"}}, tw.all())
}

func TestDisabledChannelsReturnNotFound(t *testing.T) {
	h := NewWebhookHandler(&recordingAssistant{}, WebhookOptions{}, logger.NewNop())
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader("")))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type panickingAssistant struct{}

func (panickingAssistant) HandleMessage(context.Context, app.InboundMessage) string {
	panic("unexpected nil document")
}

func TestWebhookPanicStillSendsApology(t *testing.T) {
	wa := &fakeWhatsApp{}
	h := NewWebhookHandler(panickingAssistant{}, WebhookOptions{WhatsApp: wa}, logger.NewNop())
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload)))
	require.Equal(t, http.StatusOK, w.Code)
	waitIdle(t, h)

	assert.Equal(t, []sentText{{to: "15550001", text: app.FallbackReply}}, wa.all())
}
