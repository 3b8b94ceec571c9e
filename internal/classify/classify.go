// Package classify decides how an inbound event should be handled
// based on its content kind.
package classify

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
)

var ErrUnsupportedContent = errors.New("unsupported content")

// Handling names the pipeline branch an event takes.
type Handling string

const (
	// HandleText goes straight to the chat model.
	HandleText Handling = "text"
	// HandleVision resolves the media URL through the vision model.
	HandleVision Handling = "vision"
	// HandleTranscribe transcribes the audio first, then chats.
	HandleTranscribe Handling = "transcribe"
	// HandleDocument acknowledges a received document.
	HandleDocument Handling = "document"
)

// Classify maps an event to its handling branch. Documents other than
// PDF are rejected with ErrUnsupportedContent, as are events with a
// media kind but no media URL.
func Classify(ev channel.InboundEvent) (Handling, error) {
	switch ev.Kind {
	case channel.KindText:
		if strings.TrimSpace(ev.Text) == "" {
			return "", fmt.Errorf("%w: empty text", ErrUnsupportedContent)
		}
		return HandleText, nil
	case channel.KindImage:
		if ev.MediaURL == "" {
			return "", fmt.Errorf("%w: image without url", ErrUnsupportedContent)
		}
		return HandleVision, nil
	case channel.KindAudio:
		if ev.MediaURL == "" {
			return "", fmt.Errorf("%w: audio without url", ErrUnsupportedContent)
		}
		return HandleTranscribe, nil
	case channel.KindDocument:
		if ev.MediaURL == "" {
			return "", fmt.Errorf("%w: document without url", ErrUnsupportedContent)
		}
		ext := strings.ToLower(path.Ext(documentName(ev)))
		if ext != ".pdf" {
			return "", fmt.Errorf("%w: document type %q", ErrUnsupportedContent, ext)
		}
		return HandleDocument, nil
	}
	return "", fmt.Errorf("%w: kind %q", ErrUnsupportedContent, ev.Kind)
}

func documentName(ev channel.InboundEvent) string {
	if ev.FileName != "" {
		return ev.FileName
	}
	return ev.MediaURL
}
