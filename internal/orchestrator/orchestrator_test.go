package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/ai"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/training"
)

type memStore struct {
	mu       sync.Mutex
	states   map[string]conversation.State
	messages map[string][]conversation.Record
}

func newMemStore() *memStore {
	return &memStore{
		states:   make(map[string]conversation.State),
		messages: make(map[string][]conversation.Record),
	}
}

func (m *memStore) GetState(_ context.Context, key channel.ConversationKey) (conversation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key.String()]
	if !ok {
		return conversation.State{}, conversation.ErrNotFound
	}
	return st, nil
}

func (m *memStore) UpsertState(_ context.Context, st conversation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Key.String()] = st
	return nil
}

func (m *memStore) AppendMessage(_ context.Context, rec conversation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[rec.Conversation] = append(m.messages[rec.Conversation], rec)
	return nil
}

func (m *memStore) RecentMessages(_ context.Context, key channel.ConversationKey, limit int) ([]conversation.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.messages[key.String()]
	if len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out := make([]conversation.Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *memStore) ListStates(_ context.Context, owner conversation.Owner) ([]conversation.State, error) {
	return nil, nil
}

func (m *memStore) lastMessage(key channel.ConversationKey) (conversation.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.messages[key.String()]
	if len(recs) == 0 {
		return conversation.Record{}, false
	}
	return recs[len(recs)-1], true
}

func (m *memStore) contents(key channel.ConversationKey, role string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, rec := range m.messages[key.String()] {
		if rec.Role == role {
			out = append(out, rec.Content)
		}
	}
	return out
}

type fakeSender struct {
	mu   sync.Mutex
	typ  channel.Type
	sent []channel.OutboundMessage
}

func (f *fakeSender) Type() channel.Type { return f.typ }

func (f *fakeSender) Send(_ context.Context, msg channel.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) messages() []channel.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]channel.OutboundMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeAI struct {
	mu             sync.Mutex
	reply          string
	transcript     string
	err            error
	completions    int
	transcriptions int
	onComplete     func()
	onTranscribe   func()
}

func (f *fakeAI) Complete(context.Context, []ai.Message) (string, error) {
	f.mu.Lock()
	f.completions++
	cb := f.onComplete
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeAI) CompleteVision(context.Context, string, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeAI) Transcribe(context.Context, string) (string, error) {
	f.mu.Lock()
	f.transcriptions++
	cb := f.onTranscribe
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.transcript, nil
}

func (f *fakeAI) transcribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcriptions
}

type openGate struct{ closed map[channel.Type]bool }

func (g openGate) Allowed(t channel.Type) bool { return !g.closed[t] }

type fakeProfiler struct{ profile training.BotProfile }

func (f fakeProfiler) Active(context.Context) training.BotProfile { return f.profile }

type fakeLeads struct {
	mu       sync.Mutex
	captures int
}

func (f *fakeLeads) Capture(context.Context, channel.ConversationKey, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	return nil
}

type fixture struct {
	orch   *Orchestrator
	store  *memStore
	sender *fakeSender
	ai     *fakeAI
	convs  *conversation.Service
	leads  *fakeLeads
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}

	store := newMemStore()
	convs := conversation.NewService(store, 10, nil)
	sender := &fakeSender{typ: channel.TypeWhatsApp}
	registry := channel.NewRegistry()
	registry.Register(sender)
	aiClient := &fakeAI{reply: "resposta da IA"}
	leadSvc := &fakeLeads{}

	orch := New(cfg, registry, openGate{}, convs, conversation.NewRouter(nil),
		fakeProfiler{}, aiClient, leadSvc, nil)
	orch.sleep = func(context.Context, time.Duration) {}

	return &fixture{
		orch:   orch,
		store:  store,
		sender: sender,
		ai:     aiClient,
		convs:  convs,
		leads:  leadSvc,
	}
}

func textEvent(id, participant, text string) channel.InboundEvent {
	return channel.InboundEvent{
		ID:   id,
		Key:  channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: participant},
		Kind: channel.KindText,
		Text: text,
	}
}

// run processes the events and waits for the pipeline to drain.
func (f *fixture) run(t *testing.T, events ...channel.InboundEvent) {
	t.Helper()
	f.orch.Start()
	for _, ev := range events {
		f.orch.Enqueue(ev)
	}
	f.orch.Stop()
}

func TestTextReplyFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.run(t, textEvent("m1", "551", "quanto custa uma tradução?"))

	sent := f.sender.messages()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].Text != "resposta da IA" {
		t.Errorf("sent text = %q", sent[0].Text)
	}

	rec, ok := f.store.lastMessage(sent[0].Key)
	if !ok || rec.Role != conversation.RoleAssistant || rec.Content != "resposta da IA" {
		t.Errorf("last stored = %+v", rec)
	}
	if rec.Kind != channel.KindText || rec.Direction != conversation.DirectionOut {
		t.Errorf("reply tagged kind %q direction %q, want text/out", rec.Kind, rec.Direction)
	}
	if f.leads.captures != 1 {
		t.Errorf("lead captures = %d, want 1", f.leads.captures)
	}
}

func TestEscalationNotifiesOperator(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{OperatorPhone: "5511888888888"})
	f.run(t, textEvent("m1", "551", "quero falar com um atendente"))

	owner, err := f.convs.Owner(context.Background(),
		channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"})
	if err != nil {
		t.Fatalf("Owner: %v", err)
	}
	if owner != conversation.OwnerHuman {
		t.Errorf("owner = %q, want human", owner)
	}

	sent := f.sender.messages()
	if len(sent) != 2 {
		t.Fatalf("sent = %d messages, want operator notice + handoff", len(sent))
	}

	var notified, handedOff bool
	for _, msg := range sent {
		switch msg.Key.Participant {
		case "5511888888888":
			notified = true
			if !strings.Contains(msg.Text, "atendimento humano") {
				t.Errorf("notification text = %q", msg.Text)
			}
			if !strings.Contains(msg.Text, "quero falar com um atendente") {
				t.Errorf("notification missing history: %q", msg.Text)
			}
		case "551":
			handedOff = true
		}
	}
	if !notified || !handedOff {
		t.Errorf("notified=%v handedOff=%v", notified, handedOff)
	}
	if f.ai.completions != 0 {
		t.Errorf("completions = %d, AI must not answer an escalation", f.ai.completions)
	}
}

func TestHumanOwnedConversationHolds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	key := channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"}
	f.store.UpsertState(context.Background(), conversation.State{Key: key, Owner: conversation.OwnerHuman})

	f.run(t, textEvent("m1", "551", "ainda estou esperando"))

	if got := len(f.sender.messages()); got != 0 {
		t.Errorf("sent = %d messages, want 0 while human owns", got)
	}
	rec, ok := f.store.lastMessage(key)
	if !ok || rec.Role != conversation.RoleUser {
		t.Errorf("inbound message not stored: %+v", rec)
	}
}

func TestReleaseReturnsToAI(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	key := channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"}
	f.store.UpsertState(context.Background(), conversation.State{Key: key, Owner: conversation.OwnerHuman})

	f.run(t, textEvent("m1", "551", "+"))

	owner, _ := f.convs.Owner(context.Background(), key)
	if owner != conversation.OwnerAI {
		t.Errorf("owner = %q, want ai after release", owner)
	}
	sent := f.sender.messages()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "reativado") {
		t.Errorf("sent = %+v, want reactivation notice", sent)
	}
}

func TestTakeoverDuringCompletionDiscardsReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	key := channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"}

	// The operator takes over while the completion is in flight.
	f.ai.onComplete = func() {
		f.convs.SetOwner(context.Background(), key, conversation.OwnerHuman)
	}

	f.run(t, textEvent("m1", "551", "oi"))

	if got := len(f.sender.messages()); got != 0 {
		t.Errorf("sent = %d messages, want stale AI reply discarded", got)
	}
	rec, _ := f.store.lastMessage(key)
	if rec.Role == conversation.RoleAssistant {
		t.Errorf("stale AI reply was stored: %+v", rec)
	}
}

func TestBackendFailureSendsFallbackOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.ai.err = errors.New("backend down")

	f.run(t, textEvent("m1", "551", "oi"))

	sent := f.sender.messages()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want exactly one fallback", len(sent))
	}
	if !strings.Contains(sent[0].Text, "dificuldades técnicas") {
		t.Errorf("fallback text = %q", sent[0].Text)
	}
}

func TestAudioTranscriptionRoutesLikeText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{OperatorPhone: "5511888888888"})
	f.ai.transcript = "quero falar com um atendente"

	f.run(t, channel.InboundEvent{
		ID:       "m1",
		Key:      channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"},
		Kind:     channel.KindAudio,
		MediaURL: "https://cdn/voice.ogg",
	})

	owner, _ := f.convs.Owner(context.Background(),
		channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"})
	if owner != conversation.OwnerHuman {
		t.Errorf("owner = %q, want human after transcribed escalation", owner)
	}
}

func TestSameConversationKeepsArrivalOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Workers: 4})
	key := channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"}

	// The first event stalls in transcription; the second must still
	// commit after it, not around it.
	release := make(chan struct{})
	f.ai.transcript = "transcrição do áudio"
	f.ai.onTranscribe = func() { <-release }

	f.orch.Start()
	f.orch.Enqueue(channel.InboundEvent{
		ID:       "m1",
		Key:      key,
		Kind:     channel.KindAudio,
		MediaURL: "https://cdn/voice.ogg",
	})
	f.orch.Enqueue(textEvent("m2", "551", "segunda mensagem"))
	time.Sleep(50 * time.Millisecond)
	close(release)
	f.orch.Stop()

	got := f.store.contents(key, conversation.RoleUser)
	want := []string{"transcrição do áudio", "segunda mensagem"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("stored user turns = %q, want %q", got, want)
	}
}

func TestHumanOwnedAudioSkipsTranscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	key := channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"}
	f.store.UpsertState(context.Background(), conversation.State{Key: key, Owner: conversation.OwnerHuman})

	f.run(t, channel.InboundEvent{
		ID:       "m1",
		Key:      key,
		Kind:     channel.KindAudio,
		MediaURL: "https://cdn/voice.ogg",
	})

	if got := f.ai.transcribed(); got != 0 {
		t.Errorf("transcriptions = %d, human-owned turns need no backend call", got)
	}
	if got := len(f.sender.messages()); got != 0 {
		t.Errorf("sent = %d messages, want 0 while human owns", got)
	}
	rec, ok := f.store.lastMessage(key)
	if !ok || rec.Role != conversation.RoleUser || rec.Content != "[áudio]" {
		t.Errorf("stored = %+v, want the audio marker", rec)
	}
	if rec.Kind != channel.KindAudio {
		t.Errorf("kind = %q, want audio", rec.Kind)
	}
}

func TestEnqueueAfterStopRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.orch.Start()
	f.orch.Stop()

	if f.orch.Enqueue(textEvent("m1", "551", "oi")) {
		t.Error("events after Stop must be rejected")
	}
}

func TestEnqueueFiltersEvents(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	convs := conversation.NewService(store, 10, nil)
	registry := channel.NewRegistry()
	registry.Register(&fakeSender{typ: channel.TypeWhatsApp})
	orch := New(Config{}, registry, openGate{closed: map[channel.Type]bool{channel.TypeWeb: true}},
		convs, conversation.NewRouter(nil), fakeProfiler{}, &fakeAI{}, &fakeLeads{}, nil)

	if orch.Enqueue(channel.InboundEvent{
		Key:    channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"},
		Kind:   channel.KindText,
		Text:   "oi",
		FromMe: true,
	}) {
		t.Error("own outbound echo must be dropped")
	}

	webEv := channel.InboundEvent{
		Key:  channel.ConversationKey{Channel: channel.TypeWeb, Participant: "c1"},
		Kind: channel.KindText,
		Text: "oi",
	}
	if orch.Enqueue(webEv) {
		t.Error("gated channel must be dropped")
	}

	ev := textEvent("dup-1", "551", "oi")
	if !orch.Enqueue(ev) {
		t.Error("first delivery must be accepted")
	}
	if orch.Enqueue(ev) {
		t.Error("replayed delivery must be dropped")
	}
}

func TestDocumentAcknowledged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.run(t, channel.InboundEvent{
		ID:       "m1",
		Key:      channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"},
		Kind:     channel.KindDocument,
		MediaURL: "https://cdn/contrato.pdf",
		FileName: "contrato.pdf",
	})

	sent := f.sender.messages()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "Documento recebido") {
		t.Errorf("sent = %+v, want document acknowledgement", sent)
	}
	if f.ai.completions != 0 {
		t.Errorf("completions = %d, documents need no backend call", f.ai.completions)
	}
}

func TestUnsupportedContentReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.run(t, channel.InboundEvent{
		ID:       "m1",
		Key:      channel.ConversationKey{Channel: channel.TypeWhatsApp, Participant: "551"},
		Kind:     channel.KindDocument,
		MediaURL: "https://cdn/planilha.xlsx",
		FileName: "planilha.xlsx",
	})

	sent := f.sender.messages()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "não consigo processar") {
		t.Errorf("sent = %+v, want unsupported content reply", sent)
	}
}
