package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/ai"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
)

type memStore struct {
	mu       sync.Mutex
	states   map[string]State
	messages map[string][]Record
}

func newMemStore() *memStore {
	return &memStore{
		states:   make(map[string]State),
		messages: make(map[string][]Record),
	}
}

func (m *memStore) GetState(_ context.Context, key channel.ConversationKey) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key.String()]
	if !ok {
		return State{}, ErrNotFound
	}
	return st, nil
}

func (m *memStore) UpsertState(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Key.String()] = st
	return nil
}

func (m *memStore) AppendMessage(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[rec.Conversation] = append(m.messages[rec.Conversation], rec)
	return nil
}

func (m *memStore) RecentMessages(_ context.Context, key channel.ConversationKey, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.messages[key.String()]
	if len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *memStore) ListStates(_ context.Context, owner Owner) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []State
	for _, st := range m.states {
		if st.Owner == owner {
			out = append(out, st)
		}
	}
	return out, nil
}

func testKey() channel.ConversationKey {
	return channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "5511999999999"}
}

func TestStateCreatesAIOwned(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore(), 10, nil)
	st, err := svc.State(context.Background(), testKey())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Owner != OwnerAI {
		t.Errorf("Owner = %q, want ai on first contact", st.Owner)
	}
}

func TestSetOwnerRoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore(), 10, nil)
	ctx := context.Background()
	key := testKey()

	if _, err := svc.State(ctx, key); err != nil {
		t.Fatalf("State: %v", err)
	}
	if err := svc.SetOwner(ctx, key, OwnerHuman); err != nil {
		t.Fatalf("SetOwner: %v", err)
	}
	owner, err := svc.Owner(ctx, key)
	if err != nil {
		t.Fatalf("Owner: %v", err)
	}
	if owner != OwnerHuman {
		t.Errorf("Owner = %q, want human", owner)
	}
}

func TestHistoryWindow(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore(), 3, nil)
	ctx := context.Background()
	key := testKey()

	for _, text := range []string{"um", "dois", "três", "quatro", "cinco"} {
		if err := svc.Append(ctx, key, RoleUser, channel.KindText, text); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := svc.History(ctx, key)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("History len = %d, want 3", len(recs))
	}
	if recs[0].Content != "três" || recs[2].Content != "cinco" {
		t.Errorf("History = %q..%q, want oldest-first window", recs[0].Content, recs[2].Content)
	}
}

func TestAppendSkipsBlank(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(store, 10, nil)
	if err := svc.Append(context.Background(), testKey(), RoleUser, channel.KindText, "   "); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(store.messages) != 0 {
		t.Error("blank content must not be stored")
	}
}

func TestAppendTagsKindAndDirection(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(store, 10, nil)
	ctx := context.Background()
	key := testKey()

	svc.Append(ctx, key, RoleUser, channel.KindAudio, "[áudio]")
	svc.Append(ctx, key, RoleAssistant, channel.KindText, "entendi!")

	recs, err := svc.History(ctx, key)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("History len = %d, want 2", len(recs))
	}
	if recs[0].Kind != channel.KindAudio || recs[0].Direction != DirectionIn {
		t.Errorf("user entry = kind %q direction %q, want audio/in", recs[0].Kind, recs[0].Direction)
	}
	if recs[1].Kind != channel.KindText || recs[1].Direction != DirectionOut {
		t.Errorf("assistant entry = kind %q direction %q, want text/out", recs[1].Kind, recs[1].Direction)
	}
}

func TestContextShaping(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore(), 10, nil)
	ctx := context.Background()
	key := testKey()

	svc.Append(ctx, key, RoleUser, channel.KindText, "oi")
	svc.Append(ctx, key, RoleAssistant, channel.KindText, "olá!")
	svc.Append(ctx, key, RoleOperator, channel.KindText, "aqui é o João")

	msgs, err := svc.Context(ctx, key, "persona")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	want := []ai.Message{
		{Role: ai.RoleSystem, Content: "persona"},
		{Role: ai.RoleUser, Content: "oi"},
		{Role: ai.RoleAssistant, Content: "olá!"},
		{Role: ai.RoleAssistant, Content: "aqui é o João"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("Context len = %d, want %d", len(msgs), len(want))
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("Context[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}
