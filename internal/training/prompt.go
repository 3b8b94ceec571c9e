package training

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when no trained profile is active.
const DefaultSystemPrompt = "Você é a Mia, assistente da Legacy Translations."

// SystemPrompt assembles the chat system prompt from the profile
// sections, skipping the empty ones.
func (p BotProfile) SystemPrompt() string {
	var b strings.Builder

	intro := strings.TrimSpace(p.Description)
	if intro == "" {
		intro = DefaultSystemPrompt
	}
	b.WriteString(intro)

	writeSection := func(title, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		b.WriteString("\n\n")
		b.WriteString(title)
		b.WriteString(":\n")
		b.WriteString(body)
	}

	writeSection("OBJETIVOS", p.Goals)
	writeSection("TOM", p.Tone)
	writeSection("RESTRIÇÕES", p.Restrictions)
	writeSection("CONHECIMENTO", p.Knowledge)

	if len(p.FAQs) > 0 {
		b.WriteString("\n\nFAQs:")
		for _, f := range p.FAQs {
			q := strings.TrimSpace(f.Question)
			a := strings.TrimSpace(f.Answer)
			if q == "" || a == "" {
				continue
			}
			b.WriteString(fmt.Sprintf("\nP: %s\nR: %s", q, a))
		}
	}

	return b.String()
}
