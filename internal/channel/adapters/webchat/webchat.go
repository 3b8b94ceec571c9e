// Package webchat serves the embedded web chat widget over a
// WebSocket connection per visitor.
package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
)

var ErrClientGone = errors.New("webchat: client not connected")

const writeTimeout = 10 * time.Second

// clientFrame is the wire format both directions use on the socket.
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Adapter keeps one WebSocket connection per client id and turns
// incoming frames into channel events.
type Adapter struct {
	mu      sync.RWMutex
	clients map[string]*websocket.Conn
	// writeMu serializes socket writes; gorilla connections allow a
	// single concurrent writer.
	writeMu sync.Mutex
	inbound func(ctx context.Context, ev channel.InboundEvent)
	log     *slog.Logger
}

// NewAdapter builds the web chat adapter. Incoming frames are handed
// to inbound, which the orchestrator provides.
func NewAdapter(inbound func(ctx context.Context, ev channel.InboundEvent), log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		clients: make(map[string]*websocket.Conn),
		inbound: inbound,
		log:     log.With(slog.String("component", "webchat")),
	}
}

func (a *Adapter) Type() channel.Type { return channel.TypeWeb }

// HandleConn owns conn for its lifetime, reading frames until the
// client disconnects. It replaces any previous connection for the same
// client id.
func (a *Adapter) HandleConn(ctx context.Context, clientID string, conn *websocket.Conn) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		conn.Close()
		return
	}

	a.mu.Lock()
	if prev, ok := a.clients[clientID]; ok {
		prev.Close()
	}
	a.clients[clientID] = conn
	a.mu.Unlock()

	a.log.Info("client connected", slog.String("client_id", clientID))

	defer func() {
		a.mu.Lock()
		if a.clients[clientID] == conn {
			delete(a.clients, clientID)
		}
		a.mu.Unlock()
		conn.Close()
		a.log.Info("client disconnected", slog.String("client_id", clientID))
	}()

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.log.Debug("read failed", slog.String("client_id", clientID), slog.Any("error", err))
			}
			return
		}
		text := strings.TrimSpace(frame.Text)
		if frame.Type != "message" || text == "" {
			continue
		}
		a.inbound(ctx, channel.InboundEvent{
			Key:        channel.ConversationKey{Channel: channel.TypeWeb, Participant: clientID},
			Kind:       channel.KindText,
			Text:       text,
			ReceivedAt: time.Now(),
		})
	}
}

// Send pushes a reply frame to the connected client.
func (a *Adapter) Send(_ context.Context, msg channel.OutboundMessage) error {
	a.mu.RLock()
	conn, ok := a.clients[msg.Key.Participant]
	a.mu.RUnlock()
	if !ok {
		return &channel.DeliveryError{Channel: channel.TypeWeb, Err: ErrClientGone}
	}

	payload, err := json.Marshal(clientFrame{Type: "message", Text: msg.Text})
	if err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &channel.DeliveryError{Channel: channel.TypeWeb, Retryable: true, Err: err}
	}
	return nil
}

// Connected reports how many clients currently hold a socket.
func (a *Adapter) Connected() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}
