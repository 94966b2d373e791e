package analytics

import (
	"fmt"
	"strings"
)

// Caveat and export strings support exactly two display languages;
// unrecognized selectors fall back to English.
const (
	LangEN = "en"
	LangDE = "de"
)

// PickLang normalizes a language selector.
func PickLang(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), LangDE) {
		return LangDE
	}
	return LangEN
}

var caveatMessages = map[string]map[string]string{
	LangEN: {
		"low_sample":       "Based on only %d orders; derived ratios are statistically unreliable.",
		"foreign_currency": "%d orders in other currencies than %s were excluded from the totals.",
		"excluded":         "%d point-of-sale/draft orders were excluded.",
		"clamped":          "The result set was truncated; totals are a lower bound.",
	},
	LangDE: {
		"low_sample":       "Basiert auf nur %d Bestellungen; abgeleitete Quoten sind statistisch unzuverlässig.",
		"foreign_currency": "%d Bestellungen in anderen Währungen als %s wurden von den Summen ausgeschlossen.",
		"excluded":         "%d POS-/Entwurfsbestellungen wurden ausgeschlossen.",
		"clamped":          "Die Ergebnismenge wurde gekürzt; Summen sind eine Untergrenze.",
	},
}

func caveatMsg(lang, key string, args ...any) string {
	table, ok := caveatMessages[lang]
	if !ok {
		table = caveatMessages[LangEN]
	}
	format, ok := table[key]
	if !ok {
		format = caveatMessages[LangEN][key]
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
