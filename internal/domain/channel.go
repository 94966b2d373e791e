package domain

import "strings"

// Channel identifies an AI-assistant traffic source. The set is closed and
// stable across engine versions; new channels are additive only.
type Channel string

const (
	ChannelNone       Channel = ""
	ChannelChatGPT    Channel = "ChatGPT"
	ChannelPerplexity Channel = "Perplexity"
	ChannelCopilot    Channel = "Copilot"
	ChannelGemini     Channel = "Gemini"
	ChannelClaude     Channel = "Claude"

	// ChannelOtherAI is the catch-all bucket for AI traffic that cannot
	// be attributed to a specific assistant.
	ChannelOtherAI Channel = "Other AI"
)

// AllChannels returns the channel enumeration in display order.
func AllChannels() []Channel {
	return []Channel{
		ChannelChatGPT,
		ChannelPerplexity,
		ChannelCopilot,
		ChannelGemini,
		ChannelClaude,
		ChannelOtherAI,
	}
}

// channelColors assigns a fixed display color per channel.
var channelColors = map[Channel]string{
	ChannelChatGPT:    "#10a37f",
	ChannelPerplexity: "#1fb8cd",
	ChannelCopilot:    "#0078d4",
	ChannelGemini:     "#4e7ce8",
	ChannelClaude:     "#d97757",
	ChannelOtherAI:    "#8b8b8b",
}

// Color returns the channel's display color, gray for unknown values.
func (c Channel) Color() string {
	if color, ok := channelColors[c]; ok {
		return color
	}
	return "#8b8b8b"
}

// ParseChannel matches a name against the channel enumeration,
// case-insensitively. Returns ChannelNone when the name is unknown.
func ParseChannel(name string) Channel {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, c := range AllChannels() {
		if strings.ToLower(string(c)) == name {
			return c
		}
	}
	// Accept common spellings of the catch-all bucket.
	switch name {
	case "other", "other-ai", "other_ai", "otherai":
		return ChannelOtherAI
	}
	return ChannelNone
}
