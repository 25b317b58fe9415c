// Package incident defines the closed set of incident categories, the
// incident value type, and the terminal policy stages every incident list
// passes through before it reaches a report: safety sanitization, the
// non-empty backstop, summary ranking and the timeline.
package incident

import (
	"encoding/json"
	"strings"
)

// Type is a closed incident category. Values outside the known set never
// survive ParseType.
type Type string

const (
	Fainting           Type = "fainting"
	Choking            Type = "choking"
	ViolentActivity    Type = "violent_activity"
	Shoplifting        Type = "shoplifting"
	SuspiciousActivity Type = "suspicious_activity"
	Intrusion          Type = "intrusion"
	None               Type = "none"
)

// Types lists every known category in declaration order.
var Types = []Type{Fainting, Choking, ViolentActivity, Shoplifting, SuspiciousActivity, Intrusion, None}

// disallowed are the medical-distress categories excluded from this
// deployment. They are rewritten by Sanitize wherever they come from.
var disallowed = map[Type]bool{
	Fainting: true,
	Choking:  true,
}

// severe categories trigger notification at or above SevereConfidence.
var severe = map[Type]bool{
	Fainting:        true,
	Choking:         true,
	ViolentActivity: true,
}

// SevereConfidence is the notification threshold for severe categories.
const SevereConfidence = 0.6

// ParseType coerces a raw label to a known Type. Matching is exact after
// trimming surrounding whitespace; anything else becomes None.
func ParseType(raw string) Type {
	t := Type(strings.TrimSpace(raw))
	for _, known := range Types {
		if t == known {
			return t
		}
	}
	return None
}

// Disallowed reports whether t is excluded from this deployment.
func (t Type) Disallowed() bool { return disallowed[t] }

// Severe reports whether t belongs to the notification subset.
func (t Type) Severe() bool { return severe[t] }

// UnmarshalJSON coerces unknown labels to None instead of failing.
func (t *Type) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*t = None
		return nil
	}
	*t = ParseType(raw)
	return nil
}

// DefaultAction is the recommended action used when nothing more specific
// is available for t.
func DefaultAction(t Type) string {
	switch t {
	case Fainting:
		return "Dispatch nearby responder immediately."
	case Choking:
		return "Issue emergency alert and request human confirmation."
	case ViolentActivity:
		return "Trigger high-priority security escalation."
	case Shoplifting:
		return "Notify security team and retain timestamped evidence clip."
	case SuspiciousActivity:
		return "Notify guard and keep tracking."
	case Intrusion:
		return "Notify security and verify identity."
	default:
		return ContinueMonitoring
	}
}

// ContinueMonitoring is the default action for the None category.
const ContinueMonitoring = "Continue monitoring."
