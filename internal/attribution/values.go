package attribution

import (
	"strings"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// containsToken reports whether s contains token as a word-bounded match.
// Boundaries are any non-alphanumeric rune or the string edges, so
// "chatgpt-plus" matches "chatgpt" but "notchatgpt" does not.
func containsToken(s, token string) bool {
	s = strings.ToLower(s)
	token = strings.ToLower(token)
	if token == "" {
		return false
	}

	for start := 0; ; {
		i := strings.Index(s[start:], token)
		if i < 0 {
			return false
		}
		i += start

		before := i == 0 || !isWordRune(rune(s[i-1]))
		end := i + len(token)
		after := end == len(s) || !isWordRune(rune(s[end]))
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// aiValueToChannel maps a free-text value to a channel using word-bounded
// token matching against the UTM rule table and the channel enumeration.
// Substring matches without a word boundary never fire.
func aiValueToChannel(value string, cfg *domain.AttributionConfig) domain.Channel {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return domain.ChannelNone
	}

	if c := domain.ParseChannel(value); c != domain.ChannelNone {
		return c
	}

	for _, r := range cfg.UTMRules {
		if containsToken(value, r.Value) {
			return r.Channel
		}
	}
	for _, c := range domain.AllChannels() {
		if containsToken(value, string(c)) {
			return c
		}
	}
	return domain.ChannelNone
}

// strictTokens are platform names that are unambiguous: they are not
// ordinary vocabulary, so a word-bounded hit anywhere is accepted.
var strictTokens = []struct {
	token   string
	channel domain.Channel
}{
	{"chatgpt", domain.ChannelChatGPT},
	{"openai", domain.ChannelChatGPT},
	{"perplexity", domain.ChannelPerplexity},
	{"claude", domain.ChannelClaude},
	{"anthropic", domain.ChannelClaude},
	{"deepseek", domain.ChannelOtherAI},
	{"mistral", domain.ChannelOtherAI},
	{"phind", domain.ChannelOtherAI},
}

// ambiguousTokens collide with common vocabulary (a zodiac sign, a brand
// of search engine, a poet). They require an AI-context keyword in the
// same attribute before they are accepted.
var ambiguousTokens = []struct {
	token   string
	channel domain.Channel
}{
	{"gemini", domain.ChannelGemini},
	{"bard", domain.ChannelGemini},
	{"copilot", domain.ChannelCopilot},
	{"bing", domain.ChannelCopilot},
}

// contextKeywords gate ambiguous tokens.
var contextKeywords = []string{"ai", "assistant", "chat", "gpt", "llm"}

func hasAIContext(s string) bool {
	for _, kw := range contextKeywords {
		if containsToken(s, kw) {
			return true
		}
	}
	return false
}

// annotationKeys mark note-attribute names that explicitly carry an AI
// attribution written by this application or an integration.
var annotationKeys = []string{
	"ai_source", "ai-source", "ai source",
	"ai_channel", "ai-channel",
	"ai_attribution", "ai-attribution",
	"ai_ref",
}

func isAnnotationKey(name string) bool {
	name = strings.ToLower(name)
	for _, key := range annotationKeys {
		if strings.Contains(name, key) {
			return true
		}
	}
	return false
}

// sourceFieldHints mark note-attribute names that plausibly describe a
// traffic source. The bare "ai"/"llm" scan is restricted to these to
// avoid false positives from words merely containing the substring.
var sourceFieldHints = []string{
	"source", "channel", "medium", "referr", "origin", "attribution", "utm", "via",
}

func isSourceField(name string) bool {
	name = strings.ToLower(name)
	for _, hint := range sourceFieldHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
