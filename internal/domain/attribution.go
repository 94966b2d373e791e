package domain

// Confidence grades how strongly the winning signal supports the
// classification. Referrer evidence outranks marketer-settable parameters.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Bounds applied to persisted audit trails.
const (
	// MaxSignals caps the number of signal strings per classification.
	MaxSignals = 10

	// MaxSignalLen truncates each signal string.
	MaxSignalLen = 255

	// MaxNarrativeLen truncates the detection narrative.
	MaxNarrativeLen = 500
)

// Attribution is the result of classifying one order's traffic origin.
// Channel is ChannelNone when no qualifying signal was found.
type Attribution struct {
	Channel    Channel    `json:"channel"`
	Confidence Confidence `json:"confidence"`

	// Narrative is a human-readable justification trail, rendered in the
	// configured display language and bounded to MaxNarrativeLen.
	Narrative string `json:"narrative"`

	// Signals lists which rules fired, bounded to MaxSignals entries of
	// at most MaxSignalLen characters each.
	Signals []string `json:"signals,omitempty"`
}

// Bound truncates the narrative and signal list in place so persisted
// audit trails stay bounded.
func (a *Attribution) Bound() {
	if len(a.Narrative) > MaxNarrativeLen {
		a.Narrative = a.Narrative[:MaxNarrativeLen]
	}
	if len(a.Signals) > MaxSignals {
		a.Signals = a.Signals[:MaxSignals]
	}
	for i, s := range a.Signals {
		if len(s) > MaxSignalLen {
			a.Signals[i] = s[:MaxSignalLen]
		}
	}
}
