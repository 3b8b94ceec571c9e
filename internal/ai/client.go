// Package ai wraps the OpenAI-compatible HTTP API for chat, vision and
// audio transcription.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
)

var ErrEmptyCompletion = errors.New("ai: backend returned no content")

const (
	chatMaxTokens   = 500
	visionMaxTokens = 1000
	chatTemperature = 0.7
	retryDelay      = time.Second
)

// Client talks to an OpenAI-compatible backend. Every call retries
// once on transport errors, 429 and 5xx.
type Client struct {
	cfg    config.OpenAIConfig
	client *http.Client
	log    *slog.Logger
}

func NewClient(cfg config.OpenAIConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		log:    log.With(slog.String("component", "ai")),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete runs a text chat completion over the conversation context.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	msgs := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	req := chatRequest{
		Model:       c.cfg.ChatModel,
		Messages:    msgs,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	}
	return c.chat(ctx, "complete", req)
}

// CompleteVision asks the vision model about an image URL. The prompt
// accompanies the image as the user turn; system carries the persona.
func (c *Client) CompleteVision(ctx context.Context, system, prompt, imgURL string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = "Descreva o conteúdo desta imagem e responda de forma útil."
	}
	req := chatRequest{
		Model:     c.cfg.ChatModel,
		MaxTokens: visionMaxTokens,
		Messages: []chatMessage{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: imgURL}},
			}},
		},
	}
	return c.chat(ctx, "vision", req)
}

func (c *Client) chat(ctx context.Context, op string, req chatRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("ai: encode request: %w", err)
	}

	var out chatResponse
	if err := c.postJSON(ctx, op, "/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe downloads the audio at mediaURL and runs it through the
// transcription model.
func (c *Client) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	audio, name, err := c.download(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model", c.cfg.AudioModel); err != nil {
		return "", fmt.Errorf("ai: build form: %w", err)
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("ai: build form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("ai: build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ai: build form: %w", err)
	}

	var out transcriptionResponse
	err = c.do(ctx, "transcribe", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(c.cfg.BaseURL, "/")+"/audio/transcriptions",
			bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("ai: build download: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", &BackendError{Operation: "download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", &BackendError{
			Operation:  "download",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("media fetch %s", resp.Status),
		}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
	if err != nil {
		return nil, "", &BackendError{Operation: "download", Err: err}
	}

	name := path.Base(strings.SplitN(url, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "audio.ogg"
	}
	return data, name, nil
}

func (c *Client) postJSON(ctx context.Context, op, endpoint string, payload []byte, out any) error {
	return c.do(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(c.cfg.BaseURL, "/")+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

func (c *Client) do(ctx context.Context, op string, build func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			c.log.Warn("retrying backend call", slog.String("op", op), slog.Any("error", lastErr))
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("ai: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = &BackendError{Operation: op, Err: err}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = &BackendError{Operation: op, Err: readErr}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &BackendError{
				Operation:  op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("backend %s", resp.Status),
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return &BackendError{
				Operation:  op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("backend: %s", strings.TrimSpace(string(body))),
			}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return &BackendError{Operation: op, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}
	return lastErr
}
