// Package whatsapp integrates WhatsApp through the Z-API gateway. It
// parses Z-API webhook payloads into channel events and delivers
// replies through the send-text endpoint.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
)

var ErrIgnoredEvent = errors.New("whatsapp: event carries no message")

const (
	maxSendAttempts = 3
	retryBaseDelay  = 500 * time.Millisecond
)

// Adapter is the Z-API channel integration.
type Adapter struct {
	cfg    config.WhatsAppConfig
	client *http.Client
	log    *slog.Logger
}

func NewAdapter(cfg config.WhatsAppConfig, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log.With(slog.String("component", "whatsapp")),
	}
}

func (a *Adapter) Type() channel.Type { return channel.TypeWhatsApp }

// webhookPayload mirrors the Z-API message-received callback.
type webhookPayload struct {
	MessageID  string `json:"messageId"`
	Phone      string `json:"phone"`
	SenderName string `json:"senderName"`
	FromMe     bool   `json:"fromMe"`
	Type       string `json:"type"`
	Moment     int64  `json:"momment"`
	Text       *struct {
		Message string `json:"message"`
	} `json:"text"`
	Image *struct {
		ImageURL string `json:"imageUrl"`
		Caption  string `json:"caption"`
	} `json:"image"`
	Audio *struct {
		AudioURL string `json:"audioUrl"`
	} `json:"audio"`
	Document *struct {
		DocumentURL string `json:"documentUrl"`
		FileName    string `json:"fileName"`
	} `json:"document"`
}

// ParseWebhook normalizes one Z-API callback body. Callbacks without a
// sender phone or without any recognizable content return
// ErrIgnoredEvent so the webhook can acknowledge them silently.
func (a *Adapter) ParseWebhook(body []byte) (channel.InboundEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return channel.InboundEvent{}, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}

	phone := strings.TrimSpace(p.Phone)
	if phone == "" {
		return channel.InboundEvent{}, ErrIgnoredEvent
	}

	ev := channel.InboundEvent{
		ID:         strings.TrimSpace(p.MessageID),
		Key:        channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: phone},
		SenderName: strings.TrimSpace(p.SenderName),
		FromMe:     p.FromMe,
		ReceivedAt: time.Now(),
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if p.Moment > 0 {
		ev.ReceivedAt = time.UnixMilli(p.Moment)
	}

	switch {
	case p.Text != nil && strings.TrimSpace(p.Text.Message) != "":
		ev.Kind = channel.KindText
		ev.Text = strings.TrimSpace(p.Text.Message)
	case p.Image != nil && p.Image.ImageURL != "":
		ev.Kind = channel.KindImage
		ev.MediaURL = p.Image.ImageURL
		ev.Text = strings.TrimSpace(p.Image.Caption)
	case p.Audio != nil && p.Audio.AudioURL != "":
		ev.Kind = channel.KindAudio
		ev.MediaURL = p.Audio.AudioURL
	case p.Document != nil && p.Document.DocumentURL != "":
		ev.Kind = channel.KindDocument
		ev.MediaURL = p.Document.DocumentURL
		ev.FileName = strings.TrimSpace(p.Document.FileName)
	default:
		return channel.InboundEvent{}, ErrIgnoredEvent
	}

	return ev, nil
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Send delivers a text reply through the Z-API send-text endpoint,
// retrying on 429 and 5xx responses with exponential backoff.
func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	url := fmt.Sprintf(
		"%s/instances/%s/token/%s/send-text",
		strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.InstanceID, a.cfg.Token,
	)
	payload, err := json.Marshal(sendTextRequest{
		Phone:   msg.Key.Participant,
		Message: msg.Text,
	})
	if err != nil {
		return fmt.Errorf("whatsapp: encode send request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			delay := retryBaseDelay << (attempt - 2)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = a.sendOnce(ctx, url, payload)
		if lastErr == nil {
			return nil
		}
		var de *channel.DeliveryError
		if errors.As(lastErr, &de) && !de.Retryable {
			return lastErr
		}
		a.log.Warn("send attempt failed",
			slog.Int("attempt", attempt),
			slog.String("phone", msg.Key.Participant),
			slog.Any("error", lastErr))
	}
	return lastErr
}

func (a *Adapter) sendOnce(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Token", a.cfg.ClientToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return &channel.DeliveryError{
			Channel:   channel.TypeWhatsApp,
			Retryable: true,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &channel.DeliveryError{
		Channel:    channel.TypeWhatsApp,
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		Err:        fmt.Errorf("z-api: %s", strings.TrimSpace(string(body))),
	}
}
