package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
)

func TestParseWebhookText(t *testing.T) {
	t.Parallel()

	a := NewAdapter(config.WhatsAppConfig{}, nil)
	body := []byte(`{
		"messageId": "msg-1",
		"phone": "5511999999999",
		"senderName": "Ana",
		"type": "ReceivedCallback",
		"text": {"message": "  Olá, tudo bem? "}
	}`)

	ev, err := a.ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if ev.Kind != channel.KindText {
		t.Errorf("Kind = %q, want text", ev.Kind)
	}
	if ev.Text != "Olá, tudo bem?" {
		t.Errorf("Text = %q, want trimmed message", ev.Text)
	}
	if ev.Key.String() != "whatsapp:5511999999999" {
		t.Errorf("Key = %q", ev.Key.String())
	}
	if ev.ID != "msg-1" {
		t.Errorf("ID = %q, want msg-1", ev.ID)
	}
}

func TestParseWebhookMedia(t *testing.T) {
	t.Parallel()

	a := NewAdapter(config.WhatsAppConfig{}, nil)

	cases := []struct {
		name  string
		body  string
		kind  channel.ContentKind
		media string
		file  string
	}{
		{
			name:  "image",
			body:  `{"phone":"551", "image":{"imageUrl":"https://cdn/img.jpg","caption":"foto"}}`,
			kind:  channel.KindImage,
			media: "https://cdn/img.jpg",
		},
		{
			name:  "audio",
			body:  `{"phone":"551", "audio":{"audioUrl":"https://cdn/voice.ogg"}}`,
			kind:  channel.KindAudio,
			media: "https://cdn/voice.ogg",
		},
		{
			name:  "document",
			body:  `{"phone":"551", "document":{"documentUrl":"https://cdn/contrato.pdf","fileName":"contrato.pdf"}}`,
			kind:  channel.KindDocument,
			media: "https://cdn/contrato.pdf",
			file:  "contrato.pdf",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ev, err := a.ParseWebhook([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParseWebhook: %v", err)
			}
			if ev.Kind != tc.kind {
				t.Errorf("Kind = %q, want %q", ev.Kind, tc.kind)
			}
			if ev.MediaURL != tc.media {
				t.Errorf("MediaURL = %q, want %q", ev.MediaURL, tc.media)
			}
			if ev.FileName != tc.file {
				t.Errorf("FileName = %q, want %q", ev.FileName, tc.file)
			}
		})
	}
}

func TestParseWebhookIgnored(t *testing.T) {
	t.Parallel()

	a := NewAdapter(config.WhatsAppConfig{}, nil)

	for _, body := range []string{
		`{"type":"DeliveryCallback"}`,
		`{"phone":"551", "type":"ReceivedCallback"}`,
		`{"phone":"551", "text":{"message":"   "}}`,
	} {
		if _, err := a.ParseWebhook([]byte(body)); !errors.Is(err, ErrIgnoredEvent) {
			t.Errorf("ParseWebhook(%s) = %v, want ErrIgnoredEvent", body, err)
		}
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	var gotToken string
	var gotBody sendTextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instances/inst-1/token/tok-1/send-text" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotToken = r.Header.Get("Client-Token")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAdapter(config.WhatsAppConfig{
		InstanceID:  "inst-1",
		Token:       "tok-1",
		ClientToken: "ct-1",
		BaseURL:     srv.URL,
	}, nil)

	err := a.Send(context.Background(), channel.OutboundMessage{
		Key:  channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "5511999999999"},
		Text: "Olá!",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotToken != "ct-1" {
		t.Errorf("Client-Token = %q, want ct-1", gotToken)
	}
	if gotBody.Phone != "5511999999999" || gotBody.Message != "Olá!" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSendRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAdapter(config.WhatsAppConfig{BaseURL: srv.URL}, nil)
	err := a.Send(context.Background(), channel.OutboundMessage{
		Key:  channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"},
		Text: "oi",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestSendDoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewAdapter(config.WhatsAppConfig{BaseURL: srv.URL}, nil)
	err := a.Send(context.Background(), channel.OutboundMessage{
		Key:  channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"},
		Text: "oi",
	})

	var de *channel.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("Send = %v, want DeliveryError", err)
	}
	if de.StatusCode != http.StatusUnauthorized || de.Retryable {
		t.Errorf("DeliveryError = %+v", de)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}
