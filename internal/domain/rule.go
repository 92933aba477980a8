package domain

// RuleConfig defines an operator-authored screening rule, evaluated as a
// CEL expression over each normalized account in addition to the fixed
// catalog. The expression must return bool; a true result raises one
// alert draft for the account.
type RuleConfig struct {
	ID          string `json:"id"`
	SocietyID   string `json:"societyId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over account fields
	Expression string `json:"expression"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}
