// Package conversation tracks who owns each conversation and decides
// whether the AI or a human answers the next message.
package conversation

import "strings"

// Action is the routing decision for one inbound message.
type Action string

const (
	// ActionReply lets the AI answer.
	ActionReply Action = "reply"
	// ActionEscalate hands the conversation to a human and notifies
	// the operator.
	ActionEscalate Action = "escalate"
	// ActionHold stores the message without an automatic answer while
	// a human owns the conversation.
	ActionHold Action = "hold"
	// ActionRelease returns the conversation to the AI.
	ActionRelease Action = "release"
)

// releaseCommand is the literal a human operator (or the contact, on
// the operator's instruction) sends to hand the conversation back.
const releaseCommand = "+"

// DefaultEscalationKeywords ask for a human in Brazilian Portuguese.
func DefaultEscalationKeywords() []string {
	return []string{
		"atendente",
		"humano",
		"pessoa",
		"falar com alguem",
		"falar com alguém",
		"operador",
		"atendimento humano",
		"quero falar",
		"preciso falar",
		"transferir",
		"atender",
	}
}

// Router applies the ownership state machine to inbound text.
type Router struct {
	keywords []string
}

// NewRouter builds a router from the configured keyword list, falling
// back to the defaults when the list is empty.
func NewRouter(keywords []string) *Router {
	cleaned := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		cleaned = DefaultEscalationKeywords()
	}
	return &Router{keywords: cleaned}
}

// Decide maps the current owner and message text to an action.
// Escalation triggers on keyword containment; release only on the
// literal release command while a human owns the conversation.
func (r *Router) Decide(owner Owner, text string) Action {
	trimmed := strings.TrimSpace(text)

	if owner == OwnerHuman {
		if trimmed == releaseCommand {
			return ActionRelease
		}
		return ActionHold
	}

	lower := strings.ToLower(trimmed)
	for _, k := range r.keywords {
		if strings.Contains(lower, k) {
			return ActionEscalate
		}
	}
	return ActionReply
}
