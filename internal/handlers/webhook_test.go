package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel/adapters/whatsapp"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
)

type fakePipeline struct {
	events []channel.InboundEvent
}

func (f *fakePipeline) Enqueue(ev channel.InboundEvent) bool {
	f.events = append(f.events, ev)
	return true
}

func newWebhookEcho(pipeline *fakePipeline) *echo.Echo {
	e := echo.New()
	h := NewWebhookHandler(
		whatsapp.NewAdapter(config.WhatsAppConfig{}, nil),
		pipeline,
		config.InstagramConfig{VerifyToken: "verify-1"},
		nil,
	)
	h.Register(e)
	return e
}

func TestWhatsAppWebhookEnqueues(t *testing.T) {
	t.Parallel()

	pipeline := &fakePipeline{}
	e := newWebhookEcho(pipeline)

	body := `{"messageId":"m1","phone":"5511999999999","text":{"message":"oi"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(pipeline.events) != 1 {
		t.Fatalf("events = %d, want 1", len(pipeline.events))
	}
	if pipeline.events[0].Text != "oi" {
		t.Errorf("event text = %q", pipeline.events[0].Text)
	}
}

func TestWhatsAppWebhookAcksIgnoredPayloads(t *testing.T) {
	t.Parallel()

	pipeline := &fakePipeline{}
	e := newWebhookEcho(pipeline)

	// A delivery status callback with no message content still gets a
	// 200 so the gateway stops retrying.
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp",
		strings.NewReader(`{"type":"DeliveryCallback"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(pipeline.events) != 0 {
		t.Errorf("events = %d, want 0", len(pipeline.events))
	}
}

func TestInstagramVerify(t *testing.T) {
	t.Parallel()

	e := newWebhookEcho(&fakePipeline{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook/instagram?hub.mode=subscribe&hub.verify_token=verify-1&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("challenge = %q, want echoed back", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet,
		"/webhook/instagram?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for bad token", rec.Code)
	}
}
