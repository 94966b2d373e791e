package rules

import (
	"testing"

	"github.com/opensource-commerce/kestrel/internal/attribution"
	"github.com/opensource-commerce/kestrel/internal/domain"
)

func newEngine(t *testing.T) *CustomEngine {
	t.Helper()
	e, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine: %v", err)
	}
	return e
}

func TestValidateRule(t *testing.T) {
	e := newEngine(t)

	cases := []struct {
		name    string
		rule    *domain.CustomRule
		wantErr bool
	}{
		{
			name: "ValidDomainPredicate",
			rule: &domain.CustomRule{
				ID:         "r1",
				Expression: `referrer_domain == "example-bot.com"`,
				Channel:    domain.ChannelOtherAI,
			},
		},
		{
			name: "ValidTagPredicate",
			rule: &domain.CustomRule{
				ID:         "r2",
				Expression: `"partner-ai" in tags`,
				Channel:    domain.ChannelOtherAI,
			},
		},
		{
			name: "NonBoolExpression",
			rule: &domain.CustomRule{
				ID:         "r3",
				Expression: `utm_source`,
				Channel:    domain.ChannelChatGPT,
			},
			wantErr: true,
		},
		{
			name: "SyntaxError",
			rule: &domain.CustomRule{
				ID:         "r4",
				Expression: `referrer ==`,
				Channel:    domain.ChannelChatGPT,
			},
			wantErr: true,
		},
		{
			name: "MissingChannel",
			rule: &domain.CustomRule{
				ID:         "r5",
				Expression: `true`,
			},
			wantErr: true,
		},
		{
			name: "UnknownVariable",
			rule: &domain.CustomRule{
				ID:         "r6",
				Expression: `order_total > 100.0`,
				Channel:    domain.ChannelChatGPT,
			},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := e.ValidateRule(tc.rule)
			if tc.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	e := newEngine(t)
	err := e.LoadRules([]*domain.CustomRule{
		{
			ID: "r1", Name: "partner-bot", Enabled: true,
			Expression: `referrer_domain == "shopbot.example.com"`,
			Channel:    domain.ChannelOtherAI,
		},
		{
			ID: "r2", Name: "internal-test", Enabled: false,
			Expression: `utm_source == "qa"`,
			Channel:    domain.ChannelChatGPT,
		},
		{
			ID: "r3", Name: "note-flag", Enabled: true,
			Expression: `"assistant" in notes && notes["assistant"] == "claude"`,
			Channel:    domain.ChannelClaude,
		},
	})
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if e.RulesCount() != 2 {
		t.Fatalf("expected 2 loaded rules (disabled skipped), got %d", e.RulesCount())
	}

	t.Run("DomainPredicate", func(t *testing.T) {
		channel, name, ok := e.Match(attribution.Input{Referrer: "https://www.shopbot.example.com/x"})
		if !ok {
			t.Fatal("expected a match")
		}
		if channel != domain.ChannelOtherAI || name != "partner-bot" {
			t.Errorf("got channel %q rule %q", channel, name)
		}
	})

	t.Run("DisabledRuleNeverMatches", func(t *testing.T) {
		if _, _, ok := e.Match(attribution.Input{UTMSource: "qa"}); ok {
			t.Error("disabled rule must not match")
		}
	})

	t.Run("NotesMap", func(t *testing.T) {
		channel, _, ok := e.Match(attribution.Input{NoteAttributes: []domain.NoteAttribute{
			{Name: "assistant", Value: "claude"},
		}})
		if !ok || channel != domain.ChannelClaude {
			t.Errorf("expected Claude match, got %q ok=%v", channel, ok)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		if _, _, ok := e.Match(attribution.Input{Referrer: "https://google.com/"}); ok {
			t.Error("expected no match")
		}
	})

	t.Run("NilTagsActivate", func(t *testing.T) {
		// A rule referencing tags must evaluate cleanly with no tags set.
		if err := e.LoadRule(&domain.CustomRule{
			ID: "r4", Name: "tag-rule", Enabled: true,
			Expression: `"special" in tags`,
			Channel:    domain.ChannelOtherAI,
		}); err != nil {
			t.Fatalf("LoadRule: %v", err)
		}
		if _, _, ok := e.Match(attribution.Input{}); ok {
			t.Error("expected no match on empty input")
		}
	})
}

func TestMatchFirstRuleWins(t *testing.T) {
	e := newEngine(t)
	err := e.LoadRules([]*domain.CustomRule{
		{
			ID: "r1", Name: "first", Enabled: true,
			Expression: `utm_source == "botfleet"`,
			Channel:    domain.ChannelChatGPT,
		},
		{
			ID: "r2", Name: "second", Enabled: true,
			Expression: `utm_source == "botfleet"`,
			Channel:    domain.ChannelPerplexity,
		},
	})
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	channel, name, ok := e.Match(attribution.Input{UTMSource: "botfleet"})
	if !ok || channel != domain.ChannelChatGPT || name != "first" {
		t.Errorf("expected first loaded rule to win, got %q rule %q", channel, name)
	}
}

func TestReloadRules(t *testing.T) {
	e := newEngine(t)
	if err := e.LoadRule(&domain.CustomRule{
		ID: "r1", Name: "old", Enabled: true,
		Expression: `utm_source == "old"`,
		Channel:    domain.ChannelChatGPT,
	}); err != nil {
		t.Fatalf("LoadRule: %v", err)
	}

	err := e.ReloadRules([]*domain.CustomRule{
		{
			ID: "r2", Name: "new", Enabled: true,
			Expression: `utm_source == "new"`,
			Channel:    domain.ChannelGemini,
		},
	})
	if err != nil {
		t.Fatalf("ReloadRules: %v", err)
	}

	if _, _, ok := e.Match(attribution.Input{UTMSource: "old"}); ok {
		t.Error("replaced rule must no longer match")
	}
	if channel, _, ok := e.Match(attribution.Input{UTMSource: "new"}); !ok || channel != domain.ChannelGemini {
		t.Errorf("expected new rule to match, got %q ok=%v", channel, ok)
	}
	loaded := e.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].Name != "new" {
		t.Errorf("unexpected loaded rules: %+v", loaded)
	}
}

func TestReloadRulesRejectsBadRuleAtomically(t *testing.T) {
	e := newEngine(t)
	if err := e.LoadRule(&domain.CustomRule{
		ID: "r1", Name: "keep", Enabled: true,
		Expression: `utm_source == "keep"`,
		Channel:    domain.ChannelChatGPT,
	}); err != nil {
		t.Fatalf("LoadRule: %v", err)
	}

	err := e.ReloadRules([]*domain.CustomRule{
		{ID: "bad", Name: "bad", Enabled: true, Expression: `nonsense(`, Channel: domain.ChannelChatGPT},
	})
	if err == nil {
		t.Fatal("expected compile error")
	}
	// The previous rule set must survive a failed reload.
	if _, _, ok := e.Match(attribution.Input{UTMSource: "keep"}); !ok {
		t.Error("failed reload must not drop the existing rules")
	}
}
