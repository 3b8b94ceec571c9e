// Package channel defines the transport-neutral message model shared by
// every chat surface and the registry the rest of the service resolves
// adapters through.
package channel

import (
	"fmt"
	"strings"
	"time"
)

// Type identifies a chat surface.
type Type string

const (
	TypeWhatsApp  Type = "whatsapp"
	TypeInstagram Type = "instagram"
	TypeWeb       Type = "web"
)

// Types lists every surface the service knows about, in gate order.
func Types() []Type {
	return []Type{TypeWhatsApp, TypeInstagram, TypeWeb}
}

// ParseType normalizes a channel name. It returns an error for unknown
// surfaces so callers never route to a channel without an adapter.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeWhatsApp:
		return TypeWhatsApp, nil
	case TypeInstagram:
		return TypeInstagram, nil
	case TypeWeb:
		return TypeWeb, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// ContentKind classifies inbound payloads.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindImage    ContentKind = "image"
	KindAudio    ContentKind = "audio"
	KindDocument ContentKind = "document"
)

// ConversationKey identifies one conversation across the service. The
// participant is the channel-local sender id (phone number for
// WhatsApp, client id for web chat).
type ConversationKey struct {
	Channel     Type
	Participant string
}

func (k ConversationKey) String() string {
	return string(k.Channel) + ":" + k.Participant
}

// Valid reports whether both halves of the key are present.
func (k ConversationKey) Valid() bool {
	return k.Channel != "" && strings.TrimSpace(k.Participant) != ""
}

// InboundEvent is one normalized message received from a channel.
type InboundEvent struct {
	ID         string
	Key        ConversationKey
	Kind       ContentKind
	Text       string
	MediaURL   string
	FileName   string
	SenderName string
	FromMe     bool
	ReceivedAt time.Time
}

// OutboundMessage is one reply headed back to a channel.
type OutboundMessage struct {
	Key  ConversationKey
	Text string
}
