package conversation

import "testing"

func TestDecideAIOwner(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)

	cases := []struct {
		text string
		want Action
	}{
		{"Oi, tudo bem?", ActionReply},
		{"Quanto custa uma tradução juramentada?", ActionReply},
		{"quero falar com um atendente", ActionEscalate},
		{"Preciso falar com uma PESSOA agora", ActionEscalate},
		{"pode transferir?", ActionEscalate},
		{"tem algum humano aí?", ActionEscalate},
		// Release command only works while a human owns the chat.
		{"+", ActionReply},
	}
	for _, tc := range cases {
		if got := r.Decide(OwnerAI, tc.text); got != tc.want {
			t.Errorf("Decide(ai, %q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestDecideHumanOwner(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)

	cases := []struct {
		text string
		want Action
	}{
		{"obrigado, vou aguardar", ActionHold},
		// Keywords must not re-escalate while a human already owns it.
		{"quero falar com atendente", ActionHold},
		{"+", ActionRelease},
		{"  +  ", ActionRelease},
		{"++", ActionHold},
	}
	for _, tc := range cases {
		if got := r.Decide(OwnerHuman, tc.text); got != tc.want {
			t.Errorf("Decide(human, %q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestNewRouterCustomKeywords(t *testing.T) {
	t.Parallel()

	r := NewRouter([]string{"  SUPORTE ", ""})
	if got := r.Decide(OwnerAI, "preciso de suporte"); got != ActionEscalate {
		t.Errorf("Decide = %q, want escalate on custom keyword", got)
	}
	// Defaults are replaced, not merged.
	if got := r.Decide(OwnerAI, "quero falar com atendente"); got != ActionReply {
		t.Errorf("Decide = %q, want reply when default keywords replaced", got)
	}
}

func TestParseOwner(t *testing.T) {
	t.Parallel()

	if got, err := ParseOwner(" Human "); err != nil || got != OwnerHuman {
		t.Errorf("ParseOwner = %q, %v", got, err)
	}
	if _, err := ParseOwner("bot"); err == nil {
		t.Error("ParseOwner(bot): expected error")
	}
}
