package domain

import "time"

// RuleSource records a rule's provenance.
type RuleSource string

const (
	RuleSourceDefault RuleSource = "default"
	RuleSourceCustom  RuleSource = "custom"
)

// DomainRule maps a referrer or landing-page domain to a channel.
// Matching is exact-or-subdomain against the normalized hostname.
type DomainRule struct {
	Domain  string     `json:"domain"`
	Channel Channel    `json:"channel"`
	Source  RuleSource `json:"source"`
}

// UTMRule maps an exact utm_source value to a channel.
type UTMRule struct {
	Value   string     `json:"value"`
	Channel Channel    `json:"channel"`
	Source  RuleSource `json:"source"`
}

// CustomRule is a merchant-defined attribution rule expressed as a CEL
// predicate over order signals. Custom rules are evaluated ahead of the
// built-in detection chain so merchants can override defaults.
type CustomRule struct {
	ID          string  `json:"id"`
	ShopID      string  `json:"shopId"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Channel     Channel `json:"channel"`
	Enabled     bool    `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// AttributionConfig bundles the rule tables consumed by the attribution
// engine. The engine only reads it; callers own synchronization.
type AttributionConfig struct {
	DomainRules []DomainRule `json:"domainRules"`
	UTMRules    []UTMRule    `json:"utmRules"`

	// MediumKeywords are AI-indicative utm_medium substrings. A medium
	// match is a weak signal, never alone sufficient to classify.
	MediumKeywords []string `json:"mediumKeywords"`

	// TagPrefix is the tag convention prefix, e.g. "ai-source" matches
	// tags like "ai-source:chatgpt", "ai-source=chatgpt" and
	// "ai-source-chatgpt".
	TagPrefix string `json:"tagPrefix"`

	// Language selects the narrative display language: "en" or "de".
	// Unrecognized values fall back to "en".
	Language string `json:"language"`
}

// DefaultAttributionConfig returns the built-in rule tables. Merchants
// extend these via the rules API; defaults are never removed, only
// shadowed by custom entries appearing earlier in the list.
func DefaultAttributionConfig() AttributionConfig {
	return AttributionConfig{
		DomainRules: []DomainRule{
			{Domain: "chatgpt.com", Channel: ChannelChatGPT, Source: RuleSourceDefault},
			{Domain: "chat.openai.com", Channel: ChannelChatGPT, Source: RuleSourceDefault},
			{Domain: "openai.com", Channel: ChannelChatGPT, Source: RuleSourceDefault},
			{Domain: "perplexity.ai", Channel: ChannelPerplexity, Source: RuleSourceDefault},
			{Domain: "pplx.ai", Channel: ChannelPerplexity, Source: RuleSourceDefault},
			{Domain: "copilot.microsoft.com", Channel: ChannelCopilot, Source: RuleSourceDefault},
			{Domain: "gemini.google.com", Channel: ChannelGemini, Source: RuleSourceDefault},
			{Domain: "bard.google.com", Channel: ChannelGemini, Source: RuleSourceDefault},
			{Domain: "claude.ai", Channel: ChannelClaude, Source: RuleSourceDefault},
			{Domain: "anthropic.com", Channel: ChannelClaude, Source: RuleSourceDefault},
			{Domain: "you.com", Channel: ChannelOtherAI, Source: RuleSourceDefault},
			{Domain: "phind.com", Channel: ChannelOtherAI, Source: RuleSourceDefault},
			{Domain: "poe.com", Channel: ChannelOtherAI, Source: RuleSourceDefault},
			{Domain: "meta.ai", Channel: ChannelOtherAI, Source: RuleSourceDefault},
			{Domain: "chat.mistral.ai", Channel: ChannelOtherAI, Source: RuleSourceDefault},
			{Domain: "chat.deepseek.com", Channel: ChannelOtherAI, Source: RuleSourceDefault},
		},
		UTMRules: []UTMRule{
			{Value: "chatgpt", Channel: ChannelChatGPT, Source: RuleSourceDefault},
			{Value: "chatgpt.com", Channel: ChannelChatGPT, Source: RuleSourceDefault},
			{Value: "openai", Channel: ChannelChatGPT, Source: RuleSourceDefault},
			{Value: "perplexity", Channel: ChannelPerplexity, Source: RuleSourceDefault},
			{Value: "copilot", Channel: ChannelCopilot, Source: RuleSourceDefault},
			{Value: "bing_copilot", Channel: ChannelCopilot, Source: RuleSourceDefault},
			{Value: "gemini", Channel: ChannelGemini, Source: RuleSourceDefault},
			{Value: "claude", Channel: ChannelClaude, Source: RuleSourceDefault},
			{Value: "claude.ai", Channel: ChannelClaude, Source: RuleSourceDefault},
			{Value: "poe", Channel: ChannelOtherAI, Source: RuleSourceDefault},
			{Value: "you.com", Channel: ChannelOtherAI, Source: RuleSourceDefault},
		},
		MediumKeywords: []string{"ai", "llm", "chat", "assistant", "ai_chat", "chatbot"},
		TagPrefix:      "ai-source",
		Language:       "en",
	}
}

// WithMerchantRules returns a copy of the config with merchant rule
// tables prepended. The engine matches in list order, so a merchant rule
// for a domain or utm_source value shadows the built-in entry without
// removing it.
func (c AttributionConfig) WithMerchantRules(domainRules []DomainRule, utmRules []UTMRule) AttributionConfig {
	merged := c
	if len(domainRules) > 0 {
		merged.DomainRules = append(append([]DomainRule{}, domainRules...), c.DomainRules...)
	}
	if len(utmRules) > 0 {
		merged.UTMRules = append(append([]UTMRule{}, utmRules...), c.UTMRules...)
	}
	return merged
}
