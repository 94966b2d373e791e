package attribution

import (
	"fmt"
	"strings"
)

// Exactly two display languages are supported; anything else falls back
// to English.
const (
	langEN = "en"
	langDE = "de"
)

func pickLang(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), langDE) {
		return langDE
	}
	return langEN
}

var messages = map[string]map[string]string{
	langEN: {
		"custom_rule":     "Custom rule %q matched; attributed to %s.",
		"platform":        "The %s URL %s carries an assistant-mode marker for %s.",
		"domain_referrer": "Referrer domain %s matched the rule for %s.",
		"domain_landing":  "Landing page domain %s matched the rule for %s.",
		"utm_confirms":    "UTM source %q confirms the attribution.",
		"utm_conflicts":   "UTM source %q points to %s, which conflicts; the domain evidence wins.",
		"utm_source":      "No referrer evidence; UTM source %q matched %s.",
		"utm_medium":      "UTM medium %q contains the AI keyword %q, which is too weak to classify on its own.",
		"note_annotation": "Note attribute %q carries an explicit AI annotation; value %q mapped to %s.",
		"note_token":      "Note attribute %q mentions %q; attributed to %s.",
		"note_context":    "Note attribute %q mentions %q alongside AI context; attributed to %s.",
		"note_generic":    "Source-like note attribute %q carries a bare AI marker; attributed to %s.",
		"tag":             "Tag %q matched the %q convention; attributed to %s.",
		"tag_empty":       "Tag %q matches the %q prefix but names no channel.",
		"no_signal":       "No attribution signal found. Inspected: %s.",
		"field_referrer":  "referrer",
		"field_landing":   "landing page",
		"field_utm":       "UTM parameters",
		"field_notes":     "note attributes",
		"field_tags":      "tags",
		"url_referrer":    "referrer",
		"url_landing":     "landing page",
	},
	langDE: {
		"custom_rule":     "Eigene Regel %q hat gegriffen; zugeordnet zu %s.",
		"platform":        "Die %s-URL %s enthält eine Assistentenmodus-Markierung für %s.",
		"domain_referrer": "Referrer-Domain %s entsprach der Regel für %s.",
		"domain_landing":  "Landingpage-Domain %s entsprach der Regel für %s.",
		"utm_confirms":    "UTM-Quelle %q bestätigt die Zuordnung.",
		"utm_conflicts":   "UTM-Quelle %q deutet auf %s und widerspricht; die Domain-Evidenz gewinnt.",
		"utm_source":      "Keine Referrer-Evidenz; UTM-Quelle %q entsprach %s.",
		"utm_medium":      "UTM-Medium %q enthält das KI-Schlüsselwort %q, allein zu schwach für eine Zuordnung.",
		"note_annotation": "Bestellnotiz %q trägt eine explizite KI-Annotation; Wert %q zugeordnet zu %s.",
		"note_token":      "Bestellnotiz %q erwähnt %q; zugeordnet zu %s.",
		"note_context":    "Bestellnotiz %q erwähnt %q im KI-Kontext; zugeordnet zu %s.",
		"note_generic":    "Quellenartige Bestellnotiz %q trägt eine bloße KI-Markierung; zugeordnet zu %s.",
		"tag":             "Tag %q entsprach der %q-Konvention; zugeordnet zu %s.",
		"tag_empty":       "Tag %q entspricht dem Präfix %q, nennt aber keinen Kanal.",
		"no_signal":       "Kein Zuordnungssignal gefunden. Geprüft: %s.",
		"field_referrer":  "Referrer",
		"field_landing":   "Landingpage",
		"field_utm":       "UTM-Parameter",
		"field_notes":     "Bestellnotizen",
		"field_tags":      "Tags",
		"url_referrer":    "Referrer",
		"url_landing":     "Landingpage",
	},
}

func tr(lang, key string, args ...any) string {
	table, ok := messages[lang]
	if !ok {
		table = messages[langEN]
	}
	format, ok := table[key]
	if !ok {
		format = messages[langEN][key]
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
