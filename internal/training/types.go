package training

import "time"

// FAQ is one trained question and answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// BotProfile is the operator-edited personality the assistant speaks
// with. Exactly one profile is active at a time.
type BotProfile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Goals        string    `json:"goals"`
	Tone         string    `json:"tone"`
	Restrictions string    `json:"restrictions"`
	Knowledge    string    `json:"knowledge"`
	FAQs         []FAQ     `json:"faqs"`
	ReplyDelay   int       `json:"reply_delay"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Delay returns the humanizing reply delay, bounded to keep a bad
// profile from stalling the pipeline.
func (p BotProfile) Delay() time.Duration {
	d := p.ReplyDelay
	if d < 0 {
		d = 0
	}
	if d > 30 {
		d = 30
	}
	return time.Duration(d) * time.Second
}
