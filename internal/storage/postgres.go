// Package storage implements the service store interfaces on
// Postgres.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/gate"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/leads"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/training"
)

// Store backs every service store interface with one pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetState loads one conversation state.
func (s *Store) GetState(ctx context.Context, key channel.ConversationKey) (conversation.State, error) {
	var owner string
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT owner, updated_at FROM conversations WHERE key = $1`,
		key.String(),
	).Scan(&owner, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return conversation.State{}, conversation.ErrNotFound
	}
	if err != nil {
		return conversation.State{}, fmt.Errorf("get state: %w", err)
	}

	parsed, err := conversation.ParseOwner(owner)
	if err != nil {
		return conversation.State{}, fmt.Errorf("get state: %w", err)
	}
	return conversation.State{Key: key, Owner: parsed, UpdatedAt: updatedAt}, nil
}

// UpsertState writes the conversation state.
func (s *Store) UpsertState(ctx context.Context, st conversation.State) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (key, channel, participant, owner, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET owner = EXCLUDED.owner, updated_at = EXCLUDED.updated_at`,
		st.Key.String(), string(st.Key.Channel), st.Key.Participant, string(st.Owner), st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// AppendMessage stores one history entry. The seq column is assigned
// by the database and is the ordering authority, created_at alone can
// tie within a microsecond.
func (s *Store) AppendMessage(ctx context.Context, rec conversation.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation, role, kind, direction, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Conversation, rec.Role, string(rec.Kind), rec.Direction, rec.Content, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest limit entries, oldest first.
func (s *Store) RecentMessages(ctx context.Context, key channel.ConversationKey, limit int) ([]conversation.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation, role, kind, direction, content, created_at
		 FROM messages
		 WHERE conversation = $1
		 ORDER BY seq DESC
		 LIMIT $2`,
		key.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var recs []conversation.Record
	for rows.Next() {
		var rec conversation.Record
		var kind string
		if err := rows.Scan(&rec.ID, &rec.Conversation, &rec.Role, &kind, &rec.Direction, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("recent messages: %w", err)
		}
		rec.Kind = channel.ContentKind(kind)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}

	// Query returns newest first.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// ListStates returns conversations with the given owner, most recent
// first.
func (s *Store) ListStates(ctx context.Context, owner conversation.Owner) ([]conversation.State, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT channel, participant, owner, updated_at
		 FROM conversations
		 WHERE owner = $1
		 ORDER BY updated_at DESC`,
		string(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var out []conversation.State
	for rows.Next() {
		var ch, participant, ownerStr string
		var updatedAt time.Time
		if err := rows.Scan(&ch, &participant, &ownerStr, &updatedAt); err != nil {
			return nil, fmt.Errorf("list states: %w", err)
		}
		parsed, err := conversation.ParseOwner(ownerStr)
		if err != nil {
			return nil, fmt.Errorf("list states: %w", err)
		}
		out = append(out, conversation.State{
			Key:       channel.ConversationKey{Channel: channel.Type(ch), Participant: participant},
			Owner:     parsed,
			UpdatedAt: updatedAt,
		})
	}
	return out, rows.Err()
}

// PruneMessages deletes history older than cutoff and returns the
// number of rows removed.
func (s *Store) PruneMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListGates loads all channel flags.
func (s *Store) ListGates(ctx context.Context) (map[channel.Type]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT channel, enabled FROM channel_gates`)
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	defer rows.Close()

	flags := make(map[channel.Type]bool)
	for rows.Next() {
		var ch string
		var enabled bool
		if err := rows.Scan(&ch, &enabled); err != nil {
			return nil, fmt.Errorf("list gates: %w", err)
		}
		flags[channel.Type(ch)] = enabled
	}
	return flags, rows.Err()
}

// SetGate writes one channel flag.
func (s *Store) SetGate(ctx context.Context, t channel.Type, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channel_gates (channel, enabled, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (channel) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`,
		string(t), enabled,
	)
	if err != nil {
		return fmt.Errorf("set gate: %w", err)
	}
	return nil
}

// GetBotConfig loads the global bot switch. The row is seeded by the
// migration; a missing row reads as enabled.
func (s *Store) GetBotConfig(ctx context.Context) (gate.BotConfig, error) {
	var cfg gate.BotConfig
	err := s.pool.QueryRow(ctx,
		`SELECT enabled, maintenance FROM bot_config WHERE id = 1`,
	).Scan(&cfg.Enabled, &cfg.Maintenance)
	if errors.Is(err, pgx.ErrNoRows) {
		return gate.BotConfig{Enabled: true}, nil
	}
	if err != nil {
		return gate.BotConfig{}, fmt.Errorf("get bot config: %w", err)
	}
	return cfg, nil
}

// SetBotConfig writes the global bot switch.
func (s *Store) SetBotConfig(ctx context.Context, cfg gate.BotConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bot_config (id, enabled, maintenance, updated_at)
		 VALUES (1, $1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET
		   enabled = EXCLUDED.enabled,
		   maintenance = EXCLUDED.maintenance,
		   updated_at = now()`,
		cfg.Enabled, cfg.Maintenance,
	)
	if err != nil {
		return fmt.Errorf("set bot config: %w", err)
	}
	return nil
}

// ActiveProfile loads the active bot profile.
func (s *Store) ActiveProfile(ctx context.Context) (training.BotProfile, error) {
	var p training.BotProfile
	var faqs []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, goals, tone, restrictions, knowledge, faqs, reply_delay, active, updated_at
		 FROM bot_profiles
		 WHERE active
		 ORDER BY updated_at DESC
		 LIMIT 1`,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Goals, &p.Tone, &p.Restrictions,
		&p.Knowledge, &faqs, &p.ReplyDelay, &p.Active, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return training.BotProfile{}, training.ErrProfileNotFound
	}
	if err != nil {
		return training.BotProfile{}, fmt.Errorf("active profile: %w", err)
	}

	if len(faqs) > 0 {
		if err := json.Unmarshal(faqs, &p.FAQs); err != nil {
			return training.BotProfile{}, fmt.Errorf("active profile: decode faqs: %w", err)
		}
	}
	return p, nil
}

// SaveProfile writes the profile and deactivates every other one.
func (s *Store) SaveProfile(ctx context.Context, p training.BotProfile) error {
	faqs, err := json.Marshal(p.FAQs)
	if err != nil {
		return fmt.Errorf("save profile: encode faqs: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	defer tx.Rollback(ctx)

	if p.Active {
		if _, err := tx.Exec(ctx, `UPDATE bot_profiles SET active = FALSE WHERE id <> $1`, p.ID); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO bot_profiles (id, name, description, goals, tone, restrictions, knowledge, faqs, reply_delay, active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   description = EXCLUDED.description,
		   goals = EXCLUDED.goals,
		   tone = EXCLUDED.tone,
		   restrictions = EXCLUDED.restrictions,
		   knowledge = EXCLUDED.knowledge,
		   faqs = EXCLUDED.faqs,
		   reply_delay = EXCLUDED.reply_delay,
		   active = EXCLUDED.active,
		   updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Description, p.Goals, p.Tone, p.Restrictions,
		p.Knowledge, faqs, p.ReplyDelay, p.Active, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return tx.Commit(ctx)
}

// GetLead loads the lead for a conversation key.
func (s *Store) GetLead(ctx context.Context, key channel.ConversationKey) (leads.Lead, error) {
	var l leads.Lead
	err := s.pool.QueryRow(ctx,
		`SELECT id, channel, participant, name, email, status, notes, created_at, updated_at
		 FROM leads
		 WHERE channel = $1 AND participant = $2`,
		string(key.Channel), key.Participant,
	).Scan(&l.ID, &l.Channel, &l.Participant, &l.Name, &l.Email, &l.Status,
		&l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return leads.Lead{}, leads.ErrNotFound
	}
	if err != nil {
		return leads.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// UpsertLead writes the lead keyed by channel and participant.
func (s *Store) UpsertLead(ctx context.Context, l leads.Lead) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, channel, participant, name, email, status, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (channel, participant) DO UPDATE SET
		   name = EXCLUDED.name,
		   email = EXCLUDED.email,
		   updated_at = EXCLUDED.updated_at`,
		l.ID, l.Channel, l.Participant, l.Name, l.Email, l.Status, l.Notes, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}

// ListLeads returns leads, optionally filtered by status, most recent
// first.
func (s *Store) ListLeads(ctx context.Context, status string) ([]leads.Lead, error) {
	query := `SELECT id, channel, participant, name, email, status, notes, created_at, updated_at
	          FROM leads`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []leads.Lead
	for rows.Next() {
		var l leads.Lead
		if err := rows.Scan(&l.ID, &l.Channel, &l.Participant, &l.Name, &l.Email,
			&l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list leads: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateLeadStatus moves a lead through the funnel.
func (s *Store) UpdateLeadStatus(ctx context.Context, id, status, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $2, notes = $3, updated_at = now() WHERE id = $1`,
		id, status, notes,
	)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return leads.ErrNotFound
	}
	return nil
}
