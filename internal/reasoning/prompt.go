package reasoning

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/watchpost/internal/incident"
)

// PrimaryClassifierRules must stay in step with the instruction set used to
// fine-tune the local classifier.
const PrimaryClassifierRules = "You are the primary security incident classifier. Use ONLY the multimodal summary below.\n\n" +
	"RULES:\n" +
	"- Choose the SINGLE most likely incident type.\n" +
	"- Focus on: shoplifting, suspicious_activity, violent_activity, or none.\n" +
	"- Shoplifting = concealment, item handling, retail context, person moving with items.\n" +
	"- Do NOT classify as fainting or choking. Those are not valid.\n" +
	"- Return ONLY a JSON array with exactly one object: {\"incident_type\", \"confidence\", \"timestamp_seconds\", \"evidence\", \"recommended_action\"}.\n" +
	"Allowed incident_type: shoplifting, suspicious_activity, violent_activity, intrusion, none.\n\n"

const enrichmentRules = "You are the on-device security reasoning assistant.\n" +
	"An incident type has already been decided from the multimodal summary below. Do NOT change it.\n" +
	"Explain the evidence for it in one sentence and give one recommended action for on-site staff.\n" +
	"Return ONLY a JSON object: {\"evidence\", \"recommended_action\"}.\n\n"

// ClassifyPrompt is the full prompt asking a model to pick the incident type.
func ClassifyPrompt(summary string) string {
	return PrimaryClassifierRules + "MULTIMODAL SUMMARY:\n" + summary + "\n\nJSON array:"
}

// EnrichPrompt asks a model to describe an incident whose type is fixed.
func EnrichPrompt(summary string, inc incident.Incident) string {
	decided, _ := json.Marshal(struct {
		Type       incident.Type `json:"incident_type"`
		Confidence float64       `json:"confidence"`
		Evidence   string        `json:"evidence"`
	}{inc.Type, inc.Confidence, inc.Evidence})
	return fmt.Sprintf("%sMULTIMODAL SUMMARY:\n%s\n\nDECIDED INCIDENT:\n%s\n\nJSON object:", enrichmentRules, summary, decided)
}
