// Package orchestrator runs the inbound message pipeline: dedupe and
// gating, per-conversation serialization, routing between the AI and
// human operators, and outbound delivery.
package orchestrator

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/ai"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/classify"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/dedupe"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/training"
)

// Canned replies, in the assistant's voice.
const (
	fallbackReply    = "Desculpe, estou com dificuldades técnicas no momento. Tente novamente em instantes."
	handoffReply     = "Certo! Vou te transferir para um de nossos atendentes. Aguarde um instante, por favor."
	releaseReply     = "Assistente virtual reativado. Como posso ajudar?"
	documentReply    = "Documento recebido! Nossa equipe vai analisar e retorna em breve."
	unsupportedReply = "Desculpe, ainda não consigo processar esse tipo de conteúdo. Pode enviar como texto?"
)

const shardQueueSize = 64

// AIClient is the backend surface the pipeline needs.
type AIClient interface {
	Complete(ctx context.Context, messages []ai.Message) (string, error)
	CompleteVision(ctx context.Context, system, prompt, imageURL string) (string, error)
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

// Gatekeeper answers whether a channel accepts inbound traffic.
type Gatekeeper interface {
	Allowed(t channel.Type) bool
}

// Profiler supplies the active bot profile.
type Profiler interface {
	Active(ctx context.Context) training.BotProfile
}

// LeadCapturer records contacts as conversations happen.
type LeadCapturer interface {
	Capture(ctx context.Context, key channel.ConversationKey, senderName, text string) error
}

// Config tunes the pipeline.
type Config struct {
	Workers       int
	OperatorPhone string
}

// Orchestrator owns the worker pool. Events are sharded to workers by
// conversation key, so each conversation is handled by exactly one
// worker and its events run in arrival order.
type Orchestrator struct {
	cfg      Config
	registry *channel.Registry
	gate     Gatekeeper
	convs    *conversation.Service
	router   *conversation.Router
	profiles Profiler
	ai       AIClient
	leads    LeadCapturer
	seen     *dedupe.Cache
	log      *slog.Logger

	queues []chan channel.InboundEvent
	wg     sync.WaitGroup
	cancel context.CancelFunc

	// stopMu fences Enqueue against Stop closing the shard queues.
	stopMu  sync.RWMutex
	stopped bool

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration)
}

func New(
	cfg Config,
	registry *channel.Registry,
	gate Gatekeeper,
	convs *conversation.Service,
	router *conversation.Router,
	profiles Profiler,
	aiClient AIClient,
	leadSvc LeadCapturer,
	log *slog.Logger,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	queues := make([]chan channel.InboundEvent, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan channel.InboundEvent, shardQueueSize)
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		gate:     gate,
		convs:    convs,
		router:   router,
		profiles: profiles,
		ai:       aiClient,
		leads:    leadSvc,
		seen:     dedupe.New(10*time.Minute, 4096),
		log:      log.With(slog.String("component", "orchestrator")),
		queues:   queues,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Start launches one worker per shard.
func (o *Orchestrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	for i := range o.queues {
		o.wg.Add(1)
		go o.worker(ctx, o.queues[i])
	}
	o.log.Info("started", slog.Int("workers", len(o.queues)))
}

// Stop rejects new events, drains the shard queues and waits for
// in-flight work.
func (o *Orchestrator) Stop() {
	o.stopMu.Lock()
	o.stopped = true
	o.stopMu.Unlock()
	for _, q := range o.queues {
		close(q)
	}
	o.wg.Wait()
	if o.cancel != nil {
		o.cancel()
	}
	o.log.Info("stopped")
}

// Enqueue accepts an inbound event for processing. It never blocks:
// webhook handlers must acknowledge fast, so on a full shard the event
// is dropped and logged. The return value reports acceptance.
func (o *Orchestrator) Enqueue(ev channel.InboundEvent) bool {
	if ev.FromMe {
		return false
	}
	if !ev.Key.Valid() {
		return false
	}
	if !o.gate.Allowed(ev.Key.Channel) {
		o.log.Debug("channel gated", slog.String("channel", string(ev.Key.Channel)))
		return false
	}
	if o.seen.CheckAndMark(ev.ID) {
		o.log.Debug("duplicate dropped", slog.String("message_id", ev.ID))
		return false
	}

	o.stopMu.RLock()
	defer o.stopMu.RUnlock()
	if o.stopped {
		return false
	}
	select {
	case o.shard(ev.Key) <- ev:
		return true
	default:
		o.log.Warn("queue full, event dropped",
			slog.String("conversation", ev.Key.String()))
		return false
	}
}

// shard maps a conversation key to its worker queue. Every event for
// the same key lands on the same queue, which is what keeps per-key
// arrival order.
func (o *Orchestrator) shard(key channel.ConversationKey) chan channel.InboundEvent {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return o.queues[h.Sum32()%uint32(len(o.queues))]
}

func (o *Orchestrator) worker(ctx context.Context, queue chan channel.InboundEvent) {
	defer o.wg.Done()
	for ev := range queue {
		o.process(ctx, ev)
	}
}

func (o *Orchestrator) process(ctx context.Context, ev channel.InboundEvent) {
	log := o.log.With(slog.String("conversation", ev.Key.String()))

	handling, clsErr := classify.Classify(ev)

	st, err := o.convs.State(ctx, ev.Key)
	if err != nil {
		log.Error("load state failed", slog.Any("error", err))
		return
	}

	// While a human owns the conversation the audio is stored as a
	// marker only; transcription is an AI-turn expense.
	text := ev.Text
	backendDown := false
	if clsErr == nil && handling == classify.HandleTranscribe {
		if st.Owner != conversation.OwnerAI {
			handling = classify.HandleText
		} else {
			transcript, err := o.ai.Transcribe(ctx, ev.MediaURL)
			if err != nil {
				log.Error("transcription failed", slog.Any("error", err))
				backendDown = true
			} else {
				text = transcript
				handling = classify.HandleText
			}
		}
	}

	if err := o.leads.Capture(ctx, ev.Key, ev.SenderName, text); err != nil {
		log.Warn("lead capture failed", slog.Any("error", err))
	}

	if err := o.convs.Append(ctx, ev.Key, conversation.RoleUser, ev.Kind, userContent(ev, text)); err != nil {
		log.Error("store inbound failed", slog.Any("error", err))
	}

	switch o.router.Decide(st.Owner, text) {
	case conversation.ActionHold:

	case conversation.ActionRelease:
		if err := o.convs.SetOwner(ctx, ev.Key, conversation.OwnerAI); err != nil {
			log.Error("release failed", slog.Any("error", err))
			return
		}
		o.reply(ctx, ev.Key, releaseReply, log)

	case conversation.ActionEscalate:
		o.escalate(ctx, ev, log)
		o.reply(ctx, ev.Key, handoffReply, log)

	case conversation.ActionReply:
		o.answer(ctx, ev, handling, text, clsErr, backendDown, log)
	}
}

// answer produces the AI turn. The owner is re-read before committing:
// a human takeover during the backend call discards the pending reply.
func (o *Orchestrator) answer(
	ctx context.Context,
	ev channel.InboundEvent,
	handling classify.Handling,
	text string,
	clsErr error,
	backendDown bool,
	log *slog.Logger,
) {
	profile := o.profiles.Active(ctx)
	system := profile.SystemPrompt()

	var reply string
	switch {
	case backendDown:
		reply = fallbackReply

	case clsErr != nil:
		reply = unsupportedReply

	case handling == classify.HandleDocument:
		reply = documentReply

	case handling == classify.HandleVision:
		var err error
		reply, err = o.ai.CompleteVision(ctx, system, text, ev.MediaURL)
		if err != nil {
			log.Error("vision failed", slog.Any("error", err))
			reply = fallbackReply
		}

	default:
		msgs, err := o.convs.Context(ctx, ev.Key, system)
		if err != nil {
			log.Error("load context failed", slog.Any("error", err))
			return
		}
		reply, err = o.ai.Complete(ctx, msgs)
		if err != nil {
			log.Error("completion failed", slog.Any("error", err))
			reply = fallbackReply
		}
	}

	o.sleep(ctx, profile.Delay())

	owner, err := o.convs.Owner(ctx, ev.Key)
	if err != nil {
		log.Error("owner re-check failed", slog.Any("error", err))
		return
	}
	if owner != conversation.OwnerAI {
		log.Info("reply discarded, human took over")
		return
	}
	if err := o.convs.Append(ctx, ev.Key, conversation.RoleAssistant, channel.KindText, reply); err != nil {
		log.Error("store reply failed", slog.Any("error", err))
	}

	o.send(ctx, channel.OutboundMessage{Key: ev.Key, Text: reply}, log)
}

// escalate hands the conversation to a human and notifies the
// operator.
func (o *Orchestrator) escalate(ctx context.Context, ev channel.InboundEvent, log *slog.Logger) {
	if err := o.convs.SetOwner(ctx, ev.Key, conversation.OwnerHuman); err != nil {
		log.Error("escalation failed", slog.Any("error", err))
		return
	}

	if o.cfg.OperatorPhone == "" {
		log.Warn("no operator phone configured, takeover not notified")
		return
	}

	history, err := o.convs.History(ctx, ev.Key)
	if err != nil {
		log.Warn("history for notification failed", slog.Any("error", err))
	}
	o.send(ctx, channel.OutboundMessage{
		Key: channel.ConversationKey{
			Channel:     channel.TypeWhatsApp,
			Participant: o.cfg.OperatorPhone,
		},
		Text: notificationText(ev, history),
	}, log)
}

func notificationText(ev channel.InboundEvent, history []conversation.Record) string {
	var b strings.Builder
	b.WriteString("🔔 Novo pedido de atendimento humano\n")
	fmt.Fprintf(&b, "Canal: %s\n", ev.Key.Channel)
	if ev.SenderName != "" {
		fmt.Fprintf(&b, "Contato: %s (%s)\n", ev.Key.Participant, ev.SenderName)
	} else {
		fmt.Fprintf(&b, "Contato: %s\n", ev.Key.Participant)
	}
	if len(history) > 0 {
		b.WriteString("\nÚltimas mensagens:")
		for _, rec := range history {
			fmt.Fprintf(&b, "\n[%s] %s", rec.Role, rec.Content)
		}
	}
	b.WriteString("\n\nResponda \"+\" na conversa para devolver ao assistente.")
	return b.String()
}

// reply stores and delivers an assistant turn that needs no backend
// call.
func (o *Orchestrator) reply(ctx context.Context, key channel.ConversationKey, text string, log *slog.Logger) {
	if err := o.convs.Append(ctx, key, conversation.RoleAssistant, channel.KindText, text); err != nil {
		log.Error("store reply failed", slog.Any("error", err))
	}
	o.send(ctx, channel.OutboundMessage{Key: key, Text: text}, log)
}

func (o *Orchestrator) send(ctx context.Context, msg channel.OutboundMessage, log *slog.Logger) {
	sender, err := o.registry.Sender(msg.Key.Channel)
	if err != nil {
		log.Error("no sender for channel", slog.String("channel", string(msg.Key.Channel)))
		return
	}
	if err := sender.Send(ctx, msg); err != nil {
		log.Error("delivery failed", slog.Any("error", err))
	}
}

// userContent renders the stored history entry for an inbound event.
// Media events keep a marker so operators see what arrived.
func userContent(ev channel.InboundEvent, text string) string {
	switch ev.Kind {
	case channel.KindImage:
		if text != "" {
			return fmt.Sprintf("[imagem] %s", text)
		}
		return "[imagem]"
	case channel.KindAudio:
		if text != "" {
			return text
		}
		return "[áudio]"
	case channel.KindDocument:
		if ev.FileName != "" {
			return fmt.Sprintf("[documento] %s", ev.FileName)
		}
		return "[documento]"
	}
	return text
}
