package attribution

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Input carries one order's raw traffic signals.
type Input struct {
	Referrer       string
	LandingPage    string
	UTMSource      string
	UTMMedium      string
	Tags           []string
	NoteAttributes []domain.NoteAttribute
}

// CustomMatcher evaluates merchant-defined rules ahead of the built-in
// chain. Implemented by the CEL rule engine.
type CustomMatcher interface {
	Match(in Input) (channel domain.Channel, ruleName string, matched bool)
}

// Engine classifies orders through an ordered chain of detection stages
// with first-match-wins semantics. Classification is a pure function of
// the input and the rule tables; the engine holds no per-call state.
type Engine struct {
	custom CustomMatcher
}

// NewEngine creates an attribution engine.
func NewEngine() *Engine {
	return &Engine{}
}

// SetCustomMatcher installs the merchant rule evaluator. A nil matcher
// disables the custom stage.
func (e *Engine) SetCustomMatcher(m CustomMatcher) {
	e.custom = m
}

// stage is one link in the detection chain. A nil result means no match;
// evaluation continues with the next stage. A non-nil result is final:
// later stages are not evaluated.
type stage struct {
	name   string
	detect func(sc *signalContext) *domain.Attribution
}

// signalContext holds the parsed per-call working state shared by stages.
type signalContext struct {
	in      Input
	cfg     *domain.AttributionConfig
	lang    string
	refHost string
	refURL  *url.URL
	lndHost string
	lndURL  *url.URL
	signals []string
}

func (sc *signalContext) addSignal(format string, args ...any) {
	if len(sc.signals) >= domain.MaxSignals {
		return
	}
	sc.signals = append(sc.signals, fmt.Sprintf(format, args...))
}

func (sc *signalContext) result(channel domain.Channel, conf domain.Confidence, narrative string) *domain.Attribution {
	a := &domain.Attribution{
		Channel:    channel,
		Confidence: conf,
		Narrative:  narrative,
		Signals:    sc.signals,
	}
	a.Bound()
	return a
}

// Classify runs the detection chain for one order's signals.
func (e *Engine) Classify(in Input, cfg domain.AttributionConfig) domain.Attribution {
	sc := &signalContext{
		in:     in,
		cfg:    &cfg,
		lang:   pickLang(cfg.Language),
		refURL: parseURL(in.Referrer),
		lndURL: parseURL(in.LandingPage),
	}
	if sc.refURL != nil {
		sc.refHost = normalizeHost(sc.refURL.Hostname())
	}
	if sc.lndURL != nil {
		sc.lndHost = normalizeHost(sc.lndURL.Hostname())
	}

	for _, s := range e.stages() {
		if result := s.detect(sc); result != nil {
			return *result
		}
	}
	return *sc.noSignal()
}

// ClassifyOrder is a convenience wrapper extracting signals from an order.
func (e *Engine) ClassifyOrder(o *domain.Order, cfg domain.AttributionConfig) domain.Attribution {
	return e.Classify(Input{
		Referrer:       o.ReferringSite,
		LandingPage:    o.LandingSite,
		UTMSource:      o.UTMSource,
		UTMMedium:      o.UTMMedium,
		Tags:           o.Tags,
		NoteAttributes: o.NoteAttributes,
	}, cfg)
}

func (e *Engine) stages() []stage {
	return []stage{
		{name: "custom-rules", detect: e.customRules},
		{name: "platform-override", detect: platformOverride},
		{name: "domain-match", detect: domainMatch},
		{name: "utm-source", detect: utmSourceMatch},
		{name: "utm-medium", detect: utmMediumKeyword},
		{name: "note-attributes", detect: noteAttributes},
		{name: "tag-match", detect: tagMatch},
	}
}

// customRules runs merchant-defined CEL rules before the built-in chain
// so merchants can override default detection.
func (e *Engine) customRules(sc *signalContext) *domain.Attribution {
	if e.custom == nil {
		return nil
	}
	channel, name, ok := e.custom.Match(sc.in)
	if !ok || channel == domain.ChannelNone {
		return nil
	}
	sc.addSignal("custom_rule=%s channel=%s", name, channel)
	return sc.result(channel, domain.ConfidenceHigh, tr(sc.lang, "custom_rule", name, channel))
}

// assistantMarker checks a search-engine URL for an assistant-mode path
// segment or query parameter.
func assistantMarker(u *url.URL, host string) (domain.Channel, string) {
	if u == nil || host == "" {
		return domain.ChannelNone, ""
	}
	q := u.Query()

	switch {
	case domainMatches(host, "google.com"):
		// udm=50 is Google's AI Mode results surface.
		if q.Get("udm") == "50" {
			return domain.ChannelGemini, "udm=50"
		}
	case domainMatches(host, "bing.com"):
		if strings.HasPrefix(u.Path, "/chat") || q.Has("showconv") {
			return domain.ChannelCopilot, "/chat"
		}
	case domainMatches(host, "duckduckgo.com"):
		if strings.HasPrefix(u.Path, "/chat") || q.Get("ia") == "chat" {
			return domain.ChannelOtherAI, "ia=chat"
		}
	}
	return domain.ChannelNone, ""
}

// platformOverride resolves assistant modes of generic search domains.
// It runs before generic domain matching because those bare domains are
// deliberately absent from the rule table.
func platformOverride(sc *signalContext) *domain.Attribution {
	if channel, marker := assistantMarker(sc.refURL, sc.refHost); channel != domain.ChannelNone {
		sc.addSignal("platform=%s marker=%s channel=%s", sc.refHost, marker, channel)
		return sc.result(channel, domain.ConfidenceHigh,
			tr(sc.lang, "platform", tr(sc.lang, "url_referrer"), sc.refHost, channel))
	}
	if channel, marker := assistantMarker(sc.lndURL, sc.lndHost); channel != domain.ChannelNone {
		sc.addSignal("platform=%s marker=%s channel=%s", sc.lndHost, marker, channel)
		return sc.result(channel, domain.ConfidenceHigh,
			tr(sc.lang, "platform", tr(sc.lang, "url_landing"), sc.lndHost, channel))
	}
	return nil
}

func lookupDomainRule(host string, rules []domain.DomainRule) *domain.DomainRule {
	if host == "" {
		return nil
	}
	for i := range rules {
		if domainMatches(host, rules[i].Domain) {
			return &rules[i]
		}
	}
	return nil
}

func lookupUTMRule(source string, rules []domain.UTMRule) *domain.UTMRule {
	source = strings.TrimSpace(strings.ToLower(source))
	if source == "" {
		return nil
	}
	for i := range rules {
		if strings.ToLower(rules[i].Value) == source {
			return &rules[i]
		}
	}
	return nil
}

// domainMatch matches normalized referrer and landing-page hostnames
// against the domain rule table; the referrer takes priority. A UTM-source
// rule firing for a different channel is recorded as a conflict, but the
// domain-derived channel wins.
func domainMatch(sc *signalContext) *domain.Attribution {
	rule := lookupDomainRule(sc.refHost, sc.cfg.DomainRules)
	host := sc.refHost
	msgKey := "domain_referrer"
	if rule == nil {
		rule = lookupDomainRule(sc.lndHost, sc.cfg.DomainRules)
		host = sc.lndHost
		msgKey = "domain_landing"
	}
	if rule == nil {
		return nil
	}

	sc.addSignal("domain=%s channel=%s source=%s", host, rule.Channel, rule.Source)
	narrative := tr(sc.lang, msgKey, host, rule.Channel)

	if utmRule := lookupUTMRule(sc.in.UTMSource, sc.cfg.UTMRules); utmRule != nil {
		if utmRule.Channel == rule.Channel {
			sc.addSignal("utm_source=%s confirms=%s", sc.in.UTMSource, utmRule.Channel)
			narrative += " " + tr(sc.lang, "utm_confirms", sc.in.UTMSource)
		} else {
			sc.addSignal("utm_source=%s conflict=%s", sc.in.UTMSource, utmRule.Channel)
			narrative += " " + tr(sc.lang, "utm_conflicts", sc.in.UTMSource, utmRule.Channel)
		}
	}

	return sc.result(rule.Channel, domain.ConfidenceHigh, narrative)
}

// utmSourceMatch classifies on an exact utm_source rule when no domain
// evidence exists. Confidence is lower because the parameter is
// marketer-settable.
func utmSourceMatch(sc *signalContext) *domain.Attribution {
	rule := lookupUTMRule(sc.in.UTMSource, sc.cfg.UTMRules)
	if rule == nil {
		return nil
	}
	sc.addSignal("utm_source=%s channel=%s source=%s", sc.in.UTMSource, rule.Channel, rule.Source)
	return sc.result(rule.Channel, domain.ConfidenceMedium,
		tr(sc.lang, "utm_source", sc.in.UTMSource, rule.Channel))
}

// utmMediumKeyword records an AI-indicative utm_medium as a low-confidence
// partial signal. It is never alone sufficient to classify: the stage is
// terminal but yields no channel.
func utmMediumKeyword(sc *signalContext) *domain.Attribution {
	medium := strings.ToLower(strings.TrimSpace(sc.in.UTMMedium))
	if medium == "" {
		return nil
	}
	for _, kw := range sc.cfg.MediumKeywords {
		if containsToken(medium, kw) {
			sc.addSignal("utm_medium=%s keyword=%s partial=true", medium, kw)
			return sc.result(domain.ChannelNone, domain.ConfidenceLow,
				tr(sc.lang, "utm_medium", medium, kw))
		}
	}
	return nil
}

/// noteAttributes scans order note attributes in nested priority order:
// explicit AI-annotation fields, strict platform tokens, context-gated
// ambiguous tokens, then bare ai/llm markers under source-like names.
func noteAttributes(sc *signalContext) *domain.Attribution {
	notes := sc.in.NoteAttributes
	if len(notes) == 0 {
		return nil
	}

	// (a) Explicit AI-annotation field. Any non-empty value in such a
	// field classifies, catch-all when the value names no known channel.
	for _, n := range notes {
		if !isAnnotationKey(n.Name) || strings.TrimSpace(n.Value) == "" {
			continue
		}
		channel := aiValueToChannel(n.Value, sc.cfg)
		if channel == domain.ChannelNone {
			channel = domain.ChannelOtherAI
		}
		sc.addSignal("note=%s value=%s channel=%s", n.Name, n.Value, channel)
		return sc.result(channel, domain.ConfidenceMedium,
			tr(sc.lang, "note_annotation", n.Name, n.Value, channel))
	}

	// (b) Strict unambiguous platform tokens, word-bounded.
	for _, n := range notes {
		for _, t := range strictTokens {
			if containsToken(n.Value, t.token) {
				sc.addSignal("note=%s token=%s channel=%s", n.Name, t.token, t.channel)
				return sc.result(t.channel, domain.ConfidenceLow,
					tr(sc.lang, "note_token", n.Name, t.token, t.channel))
			}
		}
	}

	// (c) Ambiguous tokens require co-occurring AI context in the same
	// attribute's name or value.
	for _, n := range notes {
		for _, t := range ambiguousTokens {
			if containsToken(n.Value, t.token) && (hasAIContext(n.Name) || hasAIContext(n.Value)) {
				sc.addSignal("note=%s token=%s context=ai channel=%s", n.Name, t.token, t.channel)
				return sc.result(t.channel, domain.ConfidenceLow,
					tr(sc.lang, "note_context", n.Name, t.token, t.channel))
			}
		}
	}

	// (d) Bare ai/llm markers, only under names that suggest a traffic
	// source field.
	for _, n := range notes {
		if !isSourceField(n.Name) {
			continue
		}
		if containsToken(n.Value, "ai") || containsToken(n.Value, "llm") {
			sc.addSignal("note=%s marker=ai channel=%s", n.Name, domain.ChannelOtherAI)
			return sc.result(domain.ChannelOtherAI, domain.ConfidenceLow,
				tr(sc.lang, "note_generic", n.Name, domain.ChannelOtherAI))
		}
	}

	return nil
}

const tagSeparators = ":=- "

// tagMatch scans tags for the configured prefix followed by a separator
// and a channel suffix. An empty suffix after stripping separators is a
// distinct low-confidence, non-qualifying case.
func tagMatch(sc *signalContext) *domain.Attribution {
	prefix := strings.ToLower(strings.TrimSpace(sc.cfg.TagPrefix))
	if prefix == "" {
		return nil
	}

	for _, tag := range sc.in.Tags {
		trimmed := strings.TrimSpace(tag)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		rest := trimmed[len(prefix):]
		if rest != "" && !strings.ContainsRune(tagSeparators, rune(rest[0])) {
			// Prefix of a longer, unrelated tag.
			continue
		}

		suffix := strings.Trim(rest, tagSeparators)
		if suffix == "" {
			sc.addSignal("tag=%s suffix=empty partial=true", trimmed)
			return sc.result(domain.ChannelNone, domain.ConfidenceLow,
				tr(sc.lang, "tag_empty", trimmed, sc.cfg.TagPrefix))
		}

		channel := domain.ParseChannel(suffix)
		if channel == domain.ChannelNone {
			channel = domain.ChannelOtherAI
		}
		sc.addSignal("tag=%s suffix=%s channel=%s", trimmed, suffix, channel)
		return sc.result(channel, domain.ConfidenceLow,
			tr(sc.lang, "tag", trimmed, sc.cfg.TagPrefix, channel))
	}
	return nil
}

// noSignal is the terminal case: nothing matched. The narrative names the
// inspected fields in the configured display language.
func (sc *signalContext) noSignal() *domain.Attribution {
	inspected := []string{
		tr(sc.lang, "field_referrer"),
		tr(sc.lang, "field_landing"),
		tr(sc.lang, "field_utm"),
		tr(sc.lang, "field_notes"),
		tr(sc.lang, "field_tags"),
	}
	return sc.result(domain.ChannelNone, domain.ConfidenceNone,
		tr(sc.lang, "no_signal", strings.Join(inspected, ", ")))
}
