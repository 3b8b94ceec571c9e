package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/ai"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
)

// Store is the persistence surface for conversation state and history.
type Store interface {
	GetState(ctx context.Context, key channel.ConversationKey) (State, error)
	UpsertState(ctx context.Context, st State) error
	AppendMessage(ctx context.Context, rec Record) error
	RecentMessages(ctx context.Context, key channel.ConversationKey, limit int) ([]Record, error)
	ListStates(ctx context.Context, owner Owner) ([]State, error)
}

// ErrNotFound is returned by stores when no state exists for a key.
var ErrNotFound = errors.New("conversation not found")

// Service wraps the store with the defaulting and history shaping the
// pipeline needs.
type Service struct {
	store  Store
	window int
	log    *slog.Logger
}

// NewService builds the conversation service. window is the number of
// history entries carried into AI context.
func NewService(store Store, window int, log *slog.Logger) *Service {
	if window <= 0 {
		window = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		window: window,
		log:    log.With(slog.String("service", "conversation")),
	}
}

// State loads the conversation state, creating an AI-owned one on
// first contact.
func (s *Service) State(ctx context.Context, key channel.ConversationKey) (State, error) {
	st, err := s.store.GetState(ctx, key)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return State{}, err
	}

	st = State{Key: key, Owner: OwnerAI, UpdatedAt: time.Now()}
	if err := s.store.UpsertState(ctx, st); err != nil {
		return State{}, err
	}
	return st, nil
}

// SetOwner transitions the conversation to owner.
func (s *Service) SetOwner(ctx context.Context, key channel.ConversationKey, owner Owner) error {
	err := s.store.UpsertState(ctx, State{Key: key, Owner: owner, UpdatedAt: time.Now()})
	if err != nil {
		return err
	}
	s.log.Info("owner changed",
		slog.String("conversation", key.String()),
		slog.String("owner", string(owner)))
	return nil
}

// Owner re-reads just the current owner, used for the commit-time
// check after a backend call.
func (s *Service) Owner(ctx context.Context, key channel.ConversationKey) (Owner, error) {
	st, err := s.store.GetState(ctx, key)
	if err != nil {
		return "", err
	}
	return st.Owner, nil
}

// Append stores one history entry. User turns are recorded as inbound,
// everything else as outbound.
func (s *Service) Append(ctx context.Context, key channel.ConversationKey, role string, kind channel.ContentKind, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	direction := DirectionOut
	if role == RoleUser {
		direction = DirectionIn
	}
	return s.store.AppendMessage(ctx, Record{
		ID:           uuid.NewString(),
		Conversation: key.String(),
		Role:         role,
		Kind:         kind,
		Direction:    direction,
		Content:      content,
		CreatedAt:    time.Now(),
	})
}

// History returns the last window entries, oldest first.
func (s *Service) History(ctx context.Context, key channel.ConversationKey) ([]Record, error) {
	return s.store.RecentMessages(ctx, key, s.window)
}

// Context shapes the history into chat messages for the AI backend.
// Operator turns count as assistant turns so the model sees what was
// already said.
func (s *Service) Context(ctx context.Context, key channel.ConversationKey, system string) ([]ai.Message, error) {
	recs, err := s.History(ctx, key)
	if err != nil {
		return nil, err
	}

	msgs := make([]ai.Message, 0, len(recs)+1)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: system})
	for _, rec := range recs {
		role := ai.RoleUser
		if rec.Role == RoleAssistant || rec.Role == RoleOperator {
			role = ai.RoleAssistant
		}
		msgs = append(msgs, ai.Message{Role: role, Content: rec.Content})
	}
	return msgs, nil
}

// List returns conversations owned by owner, for the operator console.
func (s *Service) List(ctx context.Context, owner Owner) ([]State, error) {
	return s.store.ListStates(ctx, owner)
}
