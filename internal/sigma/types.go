package sigma

// Match records a Sigma rule hit against a log event gathered for an indicator.
type Match struct {
	IndicatorID string                 `json:"indicator_id"`
	RuleTitle   string                 `json:"rule_title"`
	RuleID      string                 `json:"rule_id,omitempty"`
	Level       string                 `json:"level"` // informational | low | medium | high | critical
	Event       map[string]interface{} `json:"event"` // matched event for evidence
}
