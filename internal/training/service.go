// Package training manages the assistant's operator-trained profile
// and turns it into the system prompt every AI call carries.
package training

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("bot profile not found")

const cacheTTL = time.Minute

// Store is the persistence surface for profiles.
type Store interface {
	ActiveProfile(ctx context.Context) (BotProfile, error)
	SaveProfile(ctx context.Context, p BotProfile) error
}

// Service caches the active profile so the message pipeline does not
// hit the database per event.
type Service struct {
	store Store
	log   *slog.Logger

	mu        sync.Mutex
	cached    BotProfile
	hasCached bool
	fetchedAt time.Time
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: store,
		log:   log.With(slog.String("service", "training")),
	}
}

// Active returns the active profile, served from cache within the TTL.
// When no profile exists a zero profile is returned; its SystemPrompt
// falls back to the default persona.
func (s *Service) Active(ctx context.Context) BotProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasCached && time.Since(s.fetchedAt) < cacheTTL {
		return s.cached
	}

	p, err := s.store.ActiveProfile(ctx)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			s.log.Warn("load active profile failed", slog.Any("error", err))
		}
		if s.hasCached {
			return s.cached
		}
		return BotProfile{}
	}

	s.cached = p
	s.hasCached = true
	s.fetchedAt = time.Now()
	return p
}

// Save persists the profile as the active one and drops the cache.
func (s *Service) Save(ctx context.Context, p BotProfile) (BotProfile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = "Mia"
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Active = true
	p.UpdatedAt = time.Now()

	if err := s.store.SaveProfile(ctx, p); err != nil {
		return BotProfile{}, err
	}

	s.mu.Lock()
	s.cached = p
	s.hasCached = true
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("profile saved", slog.String("profile", p.Name))
	return p, nil
}
