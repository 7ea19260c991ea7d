package result

// ValidationCheck is one entry in the consistency battery. Hard checks
// gate the report's overall Passed flag; soft checks are informational.
type ValidationCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Hard   bool   `json:"hard"`
	Detail string `json:"detail,omitempty"`
}

// ValidationReport is the structured outcome of the check battery over a
// completed run. Passed is true iff no hard check failed; soft failures
// surface as warnings only. The run completes regardless.
type ValidationReport struct {
	Checks   []ValidationCheck `json:"checks"`
	Warnings []string          `json:"warnings"`
	Errors   []string          `json:"errors"`
	Passed   bool              `json:"passed"`
}
