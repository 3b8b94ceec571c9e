// Package leads captures and tracks contacts across channels.
package leads

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
)

var ErrNotFound = errors.New("lead not found")

// Statuses follow the sales funnel the operators work with.
const (
	StatusNew       = "novo"
	StatusContacted = "contatado"
	StatusQualified = "qualificado"
	StatusClosed    = "fechado"
	StatusLost      = "perdido"
)

var validStatuses = map[string]bool{
	StatusNew:       true,
	StatusContacted: true,
	StatusQualified: true,
	StatusClosed:    true,
	StatusLost:      true,
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Lead is one captured contact.
type Lead struct {
	ID          string    `json:"id"`
	Channel     string    `json:"canal"`
	Participant string    `json:"participant"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the persistence surface for leads.
type Store interface {
	GetLead(ctx context.Context, key channel.ConversationKey) (Lead, error)
	UpsertLead(ctx context.Context, l Lead) error
	ListLeads(ctx context.Context, status string) ([]Lead, error)
	UpdateLeadStatus(ctx context.Context, id, status, notes string) error
}

// Service records leads as conversations happen and exposes them to
// the operator console.
type Service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: store,
		log:   log.With(slog.String("service", "leads")),
	}
}

// Capture upserts the lead for a conversation. The sender name fills
// the lead name on first sight; an email found in the message text is
// captured whenever the lead has none yet.
func (s *Service) Capture(ctx context.Context, key channel.ConversationKey, senderName, text string) error {
	lead, err := s.store.GetLead(ctx, key)
	changed := false
	switch {
	case errors.Is(err, ErrNotFound):
		now := time.Now()
		lead = Lead{
			ID:          uuid.NewString(),
			Channel:     string(key.Channel),
			Participant: key.Participant,
			Name:        strings.TrimSpace(senderName),
			Status:      StatusNew,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		changed = true
	case err != nil:
		return err
	}

	if lead.Name == "" && strings.TrimSpace(senderName) != "" {
		lead.Name = strings.TrimSpace(senderName)
		changed = true
	}
	if lead.Email == "" {
		if email := emailRe.FindString(text); email != "" {
			lead.Email = strings.ToLower(email)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	lead.UpdatedAt = time.Now()
	if err := s.store.UpsertLead(ctx, lead); err != nil {
		return err
	}
	s.log.Debug("lead captured",
		slog.String("conversation", key.String()),
		slog.String("lead", lead.ID))
	return nil
}

// List returns leads, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]Lead, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !validStatuses[status] {
		return nil, errors.New("invalid lead status")
	}
	return s.store.ListLeads(ctx, status)
}

// UpdateStatus moves a lead through the funnel.
func (s *Service) UpdateStatus(ctx context.Context, id, status, notes string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if !validStatuses[status] {
		return errors.New("invalid lead status")
	}
	return s.store.UpdateLeadStatus(ctx, id, status, strings.TrimSpace(notes))
}
