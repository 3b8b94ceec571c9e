package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
)

// Owner says who currently answers a conversation.
type Owner string

const (
	OwnerAI    Owner = "ai"
	OwnerHuman Owner = "human"
)

// ParseOwner normalizes a stored owner value.
func ParseOwner(s string) (Owner, error) {
	switch Owner(strings.ToLower(strings.TrimSpace(s))) {
	case OwnerAI:
		return OwnerAI, nil
	case OwnerHuman:
		return OwnerHuman, nil
	}
	return "", fmt.Errorf("unknown owner %q", s)
}

// Role values for stored history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleOperator  = "operator"
)

// Direction values for stored history entries, derived from the role.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// State is the persisted per-conversation record.
type State struct {
	Key       channel.ConversationKey
	Owner     Owner
	UpdatedAt time.Time
}

// Record is one stored history entry. Kind tags what the participant
// sent so audio and image turns stay distinguishable from text in the
// operator console.
type Record struct {
	ID           string
	Conversation string
	Role         string
	Kind         channel.ContentKind
	Direction    string
	Content      string
	CreatedAt    time.Time
}
